package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/config"
	"github.com/Armour007/parcelclaims-backend/internal/mesh"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// Job is the bus payload for one notification.
type Job struct {
	RequestID  string       `json:"request_id,omitempty"`
	Claim      claims.Claim `json:"claim"`
	Attachment []byte       `json:"attachment,omitempty"`
}

// Dispatcher turns persisted claims into mails. Enqueue returns as soon as the job
// is on the bus; delivery happens on a bus handler.
type Dispatcher struct {
	bus        mesh.Bus
	mailer     Mailer
	recipients []string
	maskCard   bool
	log        logrus.FieldLogger
}

func NewDispatcher(bus mesh.Bus, mailer Mailer, recipients []string, maskCard bool, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{bus: bus, mailer: mailer, recipients: recipients, maskCard: maskCard, log: log}
}

// Start subscribes the delivery handler.
func (d *Dispatcher) Start() (func(), error) {
	return d.bus.Subscribe(mesh.TopicClaimCreated, d.handle)
}

// Enqueue publishes j on the bus.
func (d *Dispatcher) Enqueue(ctx context.Context, j Job) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return &SendError{Err: err}
	}
	if err := d.bus.Publish(ctx, mesh.Event{Topic: mesh.TopicClaimCreated, Payload: payload}); err != nil {
		return &SendError{Err: fmt.Errorf("enqueue: %w", err)}
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, e mesh.Event) {
	var j Job
	if err := json.Unmarshal(e.Payload, &j); err != nil {
		d.log.WithError(err).WithField("topic", e.Topic).Error("malformed notification job")
		telemetry.RecordNotification(false)
		return
	}
	_ = d.Deliver(ctx, j)
}

// Deliver renders and sends j synchronously. Failures are logged and counted here;
// the returned error is for callers that want it.
func (d *Dispatcher) Deliver(ctx context.Context, j Job) error {
	log := d.log.WithFields(logrus.Fields{
		"claim_number": j.Claim.ClaimNumber,
		"track_number": j.Claim.TrackNumber,
		"request_id":   j.RequestID,
		"stage":        "notifying",
	})
	err := d.deliver(ctx, j)
	telemetry.RecordNotification(err == nil)
	if err != nil {
		telemetry.RecordStageFailure("notify")
		config.LogError(log, "notify", "Deliver", "send claim notification", nil, err)
		return err
	}
	log.Info("claim notification sent")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, j Job) error {
	html, err := RenderSummary(j.Claim, d.maskCard)
	if err != nil {
		return &SendError{Err: fmt.Errorf("render summary: %w", err)}
	}
	m := Message{To: d.recipients, Subject: Subject(j.Claim.ClaimNumber), HTML: html}
	if len(j.Attachment) > 0 {
		a := NewAttachment(j.Claim.ClaimNumber, j.Attachment)
		m.Attachment = &a
	}
	return d.mailer.Send(ctx, m)
}
