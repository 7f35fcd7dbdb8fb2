// Package sendreminder dispatches renewal reminder jobs to the Expo push
// gateway. Error classification decides the queue's retry behavior: malformed
// payloads, invalid tokens, and unregistered devices fail terminally, while
// gateway and network trouble is retried with backoff.
package sendreminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/common/expo"
	"subtrack-notifier/internal/common/logger"
	"subtrack-notifier/internal/models"
	"subtrack-notifier/internal/queue"
)

// JobName is the queue job type this handler consumes.
const JobName = models.ReminderJobName

// PushGateway is the slice of the Expo client the handler needs.
type PushGateway interface {
	SendPushNotification(ctx context.Context, msg expo.PushMessage) (*expo.PushTicket, error)
}

type Handler struct {
	config  *Config
	gateway PushGateway
	logger  logger.Logger
}

func NewHandler(cfg *Config, gateway PushGateway, log logger.Logger) *Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Handler{
		config:  cfg,
		gateway: gateway,
		logger:  log.WithFields(map[string]interface{}{"worker": JobName}),
	}
}

// Handle implements queue.Handler for renewal reminder jobs.
func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	if err := h.validatePayload(job.Payload); err != nil {
		h.logger.Error("reminder payload rejected", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return err
	}

	var data models.ReminderJobData
	if err := json.Unmarshal(job.Payload, &data); err != nil {
		return errors.NewPayloadInvalidError(err.Error())
	}

	if !expo.IsExpoPushToken(data.ExpoToken) {
		h.logger.Error("reminder addressed to malformed push token", map[string]interface{}{
			"jobId":          job.ID,
			"subscriptionId": data.SubscriptionID,
		})
		return errors.NewInvalidPushTokenError(data.ExpoToken)
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	ticket, err := h.gateway.SendPushNotification(sendCtx, expo.PushMessage{
		To:    data.ExpoToken,
		Sound: h.config.Sound,
		Title: data.Title,
		Body:  fmt.Sprintf("Your subscription is due tomorrow for %s", data.SubscriptionTitle),
		Data: map[string]string{
			"subscriptionId": data.SubscriptionID,
			"type":           models.NotificationTypeRenewalReminder,
		},
	})
	if err != nil {
		h.logger.Warn("push gateway unreachable", map[string]interface{}{
			"jobId":          job.ID,
			"subscriptionId": data.SubscriptionID,
			"error":          err.Error(),
		})
		return errors.NewPushSendError(err.Error())
	}

	if !ticket.Ok() {
		if ticket.DeviceNotRegistered() {
			h.logger.Warn("device no longer registered, dropping reminder", map[string]interface{}{
				"jobId":          job.ID,
				"subscriptionId": data.SubscriptionID,
			})
			return errors.NewDeviceNotRegisteredError(ticket.Message)
		}
		return errors.NewPushSendError(ticket.Message)
	}

	h.logger.Info("renewal reminder delivered to gateway", map[string]interface{}{
		"jobId":          job.ID,
		"subscriptionId": data.SubscriptionID,
		"ticketId":       ticket.ID,
		"sentAt":         time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (h *Handler) validatePayload(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(payloadSchema())
	documentLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewPayloadInvalidError(err.Error())
	}
	if !result.Valid() {
		descs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			descs[i] = desc.String()
		}
		return errors.NewPayloadInvalidError(strings.Join(descs, "; "))
	}
	return nil
}
