// Package intake runs a claim from raw input to a stored record with its document
// queued for delivery, and answers parcel eligibility checks.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Armour007/parcelclaims-backend/internal/artifact"
	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/eligibility"
	"github.com/Armour007/parcelclaims-backend/internal/ledger"
	"github.com/Armour007/parcelclaims-backend/internal/normalize"
	"github.com/Armour007/parcelclaims-backend/internal/notify"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// Stages of one create request, in order. Only conflict ends early.
const (
	StageReceived      = "received"
	StageDeduplicating = "deduplicating"
	StageConflict      = "conflict"
	StageCreating      = "creating"
	StageComposing     = "composing"
	StageSigning       = "signing"
	StageArchiving     = "archiving"
	StageNotifying     = "notifying"
	StageDone          = "done"
)

type Ledger interface {
	Find(ctx context.Context, phone, trackNumber string) (*claims.Claim, error)
	Create(ctx context.Context, in claims.ClaimInput) (*claims.Claim, error)
}

type Composer interface {
	Compose(ctx context.Context, c claims.Claim) ([]byte, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, j notify.Job) error
}

type EligibilityChecker interface {
	Check(ctx context.Context, phone, trackNumber string) (*eligibility.Verdict, error)
}

type BankDirectory interface {
	Name(ctx context.Context, bic string) (string, error)
}

// Deps are the collaborators of a Service. Banks may be nil.
type Deps struct {
	Ledger      Ledger
	Composer    Composer
	Notifier    Notifier
	Eligibility EligibilityChecker
	Banks       BankDirectory
	Archive     bool
	Log         logrus.FieldLogger
}

type Service struct {
	ledger   Ledger
	composer Composer
	notifier Notifier
	elig     EligibilityChecker
	banks    BankDirectory
	archive  bool
	log      logrus.FieldLogger

	now    func() time.Time
	bundle func(doc []byte, now time.Time) ([]byte, artifact.Signature, error)
}

func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		ledger:   d.Ledger,
		composer: d.Composer,
		notifier: d.Notifier,
		elig:     d.Eligibility,
		banks:    d.Banks,
		archive:  d.Archive,
		log:      log,
		now:      time.Now,
		bundle:   artifact.Bundle,
	}
}

// Created describes a successful create. Archived and Queued report the two
// stages that may degrade without failing the request.
type Created struct {
	Claim     *claims.Claim
	Signature artifact.Signature
	Archived  bool
	Queued    bool
}

// CreateClaim runs the full intake flow. A claim that already exists yields a
// *ledger.DuplicateError; storage and rendering failures are returned as is.
func (s *Service) CreateClaim(ctx context.Context, in claims.ClaimInput) (*Created, error) {
	log := s.log.WithFields(logrus.Fields{
		"request_id":   RequestID(ctx),
		"track_number": in.TrackNumber,
	})
	phone := normalize.Phone(in.Phone)
	log.WithField("stage", StageReceived).Debug("claim received")

	var existing *claims.Claim
	err := s.stage(ctx, StageDeduplicating, func(ctx context.Context) error {
		var err error
		existing, err = s.ledger.Find(ctx, phone, in.TrackNumber)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		telemetry.RecordStageFailure("dedup")
		log.WithError(err).WithField("stage", StageDeduplicating).Error("claim lookup failed")
		return nil, err
	}
	if existing != nil {
		return nil, s.conflict(log, existing)
	}

	var c *claims.Claim
	err = s.stage(ctx, StageCreating, func(ctx context.Context) error {
		var err error
		c, err = s.ledger.Create(ctx, in)
		return err
	})
	if dup, ok := ledger.IsDuplicate(err); ok {
		return nil, s.conflict(log, dup)
	}
	if err != nil {
		telemetry.RecordStageFailure("create")
		log.WithError(err).WithField("stage", StageCreating).Error("claim not stored")
		return nil, err
	}
	log = log.WithField("claim_number", c.ClaimNumber)
	log.WithField("stage", StageCreating).Info("claim stored")

	var doc []byte
	err = s.stage(ctx, StageComposing, func(ctx context.Context) error {
		var err error
		doc, err = s.composer.Compose(ctx, *c)
		return err
	})
	if err != nil {
		telemetry.RecordStageFailure("compose")
		log.WithError(err).WithField("stage", StageComposing).Error("claim document not generated")
		return nil, err
	}

	now := s.now()
	out := &Created{Claim: c}
	_ = s.stage(ctx, StageSigning, func(context.Context) error {
		out.Signature = artifact.ComputeSignature(doc, now)
		return nil
	})

	attachment := doc
	if s.archive {
		err = s.stage(ctx, StageArchiving, func(context.Context) error {
			bundle, sig, err := s.bundle(doc, now)
			if err != nil {
				return err
			}
			out.Signature = sig
			attachment = bundle
			out.Archived = true
			return nil
		})
		if err != nil {
			telemetry.RecordStageFailure("archive")
			log.WithError(err).WithField("stage", StageArchiving).Warn("archive failed, sending raw document")
		}
	}

	err = s.stage(ctx, StageNotifying, func(ctx context.Context) error {
		return s.notifier.Enqueue(ctx, notify.Job{RequestID: RequestID(ctx), Claim: *c, Attachment: attachment})
	})
	if err != nil {
		telemetry.RecordStageFailure("notify")
		log.WithError(err).WithField("stage", StageNotifying).Error("notification not queued")
	} else {
		out.Queued = true
	}

	telemetry.RecordClaimCreated()
	log.WithFields(logrus.Fields{"stage": StageDone, "archived": out.Archived, "queued": out.Queued}).Info("claim created")
	return out, nil
}

func (s *Service) conflict(log *logrus.Entry, existing *claims.Claim) error {
	telemetry.RecordClaimConflict()
	log.WithFields(logrus.Fields{"stage": StageConflict, "claim_number": existing.ClaimNumber}).Info("claim already exists")
	return &ledger.DuplicateError{Existing: existing}
}

// stage runs fn inside a span named after the stage.
func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "intake."+name, trace.WithAttributes(attribute.String("intake.stage", name)))
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}

// RenderPreview composes a document for input that is not stored: no claim
// number, status new, created now. The ledger is not touched.
func (s *Service) RenderPreview(ctx context.Context, in claims.ClaimInput) ([]byte, error) {
	c := claims.FromInput(in)
	c.Phone = normalize.Phone(c.Phone)
	if c.RecipientPhone != "" {
		c.RecipientPhone = normalize.Phone(c.RecipientPhone)
	}
	c.Status = claims.StatusNew
	c.CreatedAt = s.now().UTC()
	c.UpdatedAt = c.CreatedAt
	var doc []byte
	err := s.stage(ctx, StageComposing, func(ctx context.Context) error {
		var err error
		doc, err = s.composer.Compose(ctx, c)
		return err
	})
	if err != nil {
		telemetry.RecordStageFailure("preview")
		s.log.WithError(err).WithFields(logrus.Fields{"request_id": RequestID(ctx), "stage": StageComposing}).Error("preview not generated")
		return nil, err
	}
	return doc, nil
}
