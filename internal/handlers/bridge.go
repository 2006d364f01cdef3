package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"conductbridge/internal/conductip"
)

const (
	statusOK        = "ok"
	statusTriggered = "triggered"

	errTriggerSalvo = "failed to trigger salvo"
)

// logAndJSONError centralizes error logging and the error response shape.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Device connection status
// @Description  Latched status of the HTTPS connection to the ConductIP device.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/status [get]
// @Security     BearerAuth
func (h *Handler) getDeviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Status.Current())
}

// @Summary      Room topology
// @Description  Last-known-good rooms/panels/salvos snapshot from the device.
// @Tags         topology
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, rooms"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/rooms [get]
// @Security     BearerAuth
func (h *Handler) getRooms(c *gin.Context) {
	rooms := h.services.Poller.Rooms()
	c.JSON(http.StatusOK, gin.H{
		"count": len(rooms),
		"rooms": rooms,
	})
}

// @Summary      Salvos of one panel
// @Tags         topology
// @Produce      json
// @Param        panelId  path  string  true  "Panel id"
// @Success      200  {object}  map[string]interface{}  "count, salvos"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/panels/{panelId}/salvos [get]
// @Security     BearerAuth
func (h *Handler) getPanelSalvos(c *gin.Context) {
	panelID := c.Param("panelId")
	salvos, ok := h.services.Poller.PanelSalvos(panelID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown panel id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(salvos),
		"salvos": salvos,
	})
}

// @Summary      Active salvos
// @Description  Currently active salvo ids. Unknown collapses to inactive, never to stale active.
// @Tags         salvos
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, salvo_ids"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/salvos/active [get]
// @Security     BearerAuth
func (h *Handler) getActiveSalvos(c *gin.Context) {
	ids := h.services.Poller.ActiveSalvoIDs()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(ids),
		"salvo_ids": ids,
	})
}

// @Summary      Trigger a salvo
// @Description  Fires POST /salvos/{id} on the device. Independent of the polling cycle.
// @Tags         salvos
// @Produce      json
// @Param        salvoId  path  string  true  "Salvo id"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/salvos/{salvoId}/trigger [post]
// @Security     BearerAuth
func (h *Handler) triggerSalvo(c *gin.Context) {
	salvoID := strings.TrimSpace(c.Param("salvoId"))
	if salvoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "salvo id is required"})
		return
	}

	if err := h.services.Salvos.Trigger(c.Request.Context(), salvoID); err != nil {
		h.logAndJSONError(c, triggerStatusCode(err), errTriggerSalvo, "salvo_trigger_failed", err, "salvo_id", salvoID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   statusTriggered,
		"salvo_id": salvoID,
	})
}

// triggerStatusCode maps a device failure onto the bridge's own response code:
// incomplete configuration is the bridge's problem (503), everything else is
// the device upstream (502).
func triggerStatusCode(err error) int {
	var f *conductip.Failure
	if errors.As(err, &f) {
		if f.Kind == conductip.KindConfigurationIncomplete {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
