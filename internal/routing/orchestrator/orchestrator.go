// Package orchestrator drives one signal through partner selection, payload
// minimization, encryption, and delivery, keeping the routing record's status
// honest at every step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	stderrors "crisis-routing/internal/common/errors"
	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/common/metrics"
	"crisis-routing/internal/models"
	"crisis-routing/internal/routing/audit"
	"crisis-routing/internal/routing/blackout"
	"crisis-routing/internal/routing/childctx"
	"crisis-routing/internal/routing/delivery"
	"crisis-routing/internal/routing/encryption"
	"crisis-routing/internal/routing/payload"
	"crisis-routing/internal/routing/selector"
	"crisis-routing/internal/routing/store"
)

// Deliverer posts an encrypted package to a partner. Satisfied by
// *delivery.Client.
type Deliverer interface {
	Deliver(ctx context.Context, pkg *models.EncryptedSignalPackage, partner *models.CrisisPartnerConfig, correlationID string) *delivery.Result
}

// Encryptor seals an outbound payload for a partner. Satisfied by
// *encryption.Service.
type Encryptor interface {
	Encrypt(payload *models.ExternalSignalPayload, partner *models.CrisisPartnerConfig) (*models.EncryptedSignalPackage, error)
}

// Orchestrator owns the routing flow. All collaborators are injected.
type Orchestrator struct {
	records   store.RecordStore
	partners  store.PartnerStore
	children  childctx.Provider
	encryptor Encryptor
	deliverer Deliverer
	blackouts *blackout.Manager
	audit     audit.Sink
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

func New(
	records store.RecordStore,
	partners store.PartnerStore,
	children childctx.Provider,
	encryptor Encryptor,
	deliverer Deliverer,
	blackouts *blackout.Manager,
	auditSink audit.Sink,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		records:   records,
		partners:  partners,
		children:  children,
		encryptor: encryptor,
		deliverer: deliverer,
		blackouts: blackouts,
		audit:     auditSink,
		logger:    log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Route processes one signal end to end. Expected failures come back as a
// structured RouteResult with Success=false; the record, if one was created,
// is left in a terminal status that matches the outcome. Unexpected panics
// are converted to a generic internal failure with full detail kept for the
// audit trail only.
func (o *Orchestrator) Route(ctx context.Context, principal string, input models.RouteInput) (result *models.RouteResult) {
	start := o.now()
	var record *models.RoutingRecord

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("routing panic recovered", map[string]interface{}{
				"signal_id": input.SignalID,
				"panic":     fmt.Sprintf("%v", r),
			})
			stdErr := stderrors.NewInternalError(fmt.Errorf("panic: %v", r))
			if record != nil {
				result = o.failRecord(ctx, record, stdErr)
			} else {
				result = o.failResult("", stdErr)
			}
		}
		status := models.StatusFailed
		if result.Success {
			status = models.StatusSent
		}
		metrics.SignalsRouted.WithLabelValues(string(status)).Inc()
		metrics.RoutingDuration.WithLabelValues(string(status)).Observe(o.now().Sub(start).Seconds())
	}()

	// Validation failures are rejected before any record exists.
	if principal == "" {
		return o.failResult("", stderrors.NewMissingPrincipalError())
	}
	if err := validateInput(input); err != nil {
		return o.failResult("", err)
	}

	record = &models.RoutingRecord{
		ID:           o.newID(),
		SignalID:     input.SignalID,
		Jurisdiction: input.Jurisdiction,
		Status:       models.StatusPending,
		StartedAt:    o.now().UTC(),
	}
	if err := o.records.Create(ctx, record); err != nil {
		return o.failResult("", stderrors.NewStoreFailureError("create", err))
	}

	o.writeAudit(ctx, record, audit.EventRoutingStarted, map[string]interface{}{
		"principal":    principal,
		"jurisdiction": input.Jurisdiction,
	})

	child, err := o.children.Lookup(ctx, input.ChildID)
	if err != nil {
		return o.failRecord(ctx, record, stderrors.AsStandard(err))
	}

	selection, err := o.selectPartner(ctx, input.Jurisdiction)
	if err != nil {
		return o.failRecord(ctx, record, stderrors.AsStandard(err))
	}
	partner := selection.Partner

	o.writeAudit(ctx, record, audit.EventPartnerSelected, map[string]interface{}{
		"partner_id":    partner.PartnerID,
		"used_fallback": selection.UsedFallback,
	})

	outbound := payload.Build(payload.BuildInput{
		SignalID:         input.SignalID,
		ChildAge:         child.Age,
		HasSharedCustody: child.HasSharedCustody,
		SignalTimestamp:  input.SignalTimestamp,
		Jurisdiction:     input.Jurisdiction,
		DevicePlatform:   input.DevicePlatform,
	})

	validation, err := payload.Validate(outbound)
	if err != nil {
		return o.failRecord(ctx, record, stderrors.NewInternalError(err))
	}
	if !validation.Valid {
		return o.failRecord(ctx, record, stderrors.NewPayloadExclusionError(validation.ForbiddenFields))
	}
	o.writeAudit(ctx, record, audit.EventPayloadValidated, nil)

	if err := o.transition(ctx, record, models.StatusEncrypting, func(r *models.RoutingRecord) {
		r.PartnerID = partner.PartnerID
		r.UsedFallback = selection.UsedFallback
	}); err != nil {
		return o.failRecord(ctx, record, stderrors.NewStoreFailureError("transition", err))
	}

	pkg, err := o.encryptor.Encrypt(outbound, partner)
	if err != nil {
		if errors.Is(err, encryption.ErrPartnerKey) {
			return o.failRecord(ctx, record, stderrors.NewPartnerKeyInvalidError(partner.PartnerID, err))
		}
		return o.failRecord(ctx, record, stderrors.NewEncryptionError(err))
	}
	o.writeAudit(ctx, record, audit.EventPayloadEncrypted, map[string]interface{}{
		"public_key_hash": pkg.PublicKeyHash,
	})

	if err := o.transition(ctx, record, models.StatusSending, nil); err != nil {
		return o.failRecord(ctx, record, stderrors.NewStoreFailureError("transition", err))
	}

	o.writeAudit(ctx, record, audit.EventDeliveryAttempt, nil)

	deliveryResult := o.deliverer.Deliver(ctx, pkg, partner, record.ID)
	record.Attempts = deliveryResult.Attempts

	if !deliveryResult.Success {
		o.writeAudit(ctx, record, audit.EventDeliveryFailed, map[string]interface{}{
			"attempts": deliveryResult.Attempts,
			"rejected": deliveryResult.Rejected,
			"error":    deliveryResult.Error,
		})
		if deliveryResult.Rejected {
			return o.failRecord(ctx, record, stderrors.NewDeliveryRejectedError(deliveryResult.Error))
		}
		return o.failRecord(ctx, record, stderrors.NewDeliveryExhaustedError(deliveryResult.Attempts, deliveryResult.Error))
	}

	sentAt := o.now().UTC()
	if err := o.transition(ctx, record, models.StatusSent, func(r *models.RoutingRecord) {
		r.SentAt = &sentAt
		r.PartnerReference = deliveryResult.Reference
		r.Attempts = deliveryResult.Attempts
	}); err != nil {
		return o.failRecord(ctx, record, stderrors.NewStoreFailureError("transition", err))
	}

	o.writeAudit(ctx, record, audit.EventDeliverySucceeded, map[string]interface{}{
		"attempts":          deliveryResult.Attempts,
		"partner_reference": deliveryResult.Reference,
		"response_time_ms":  deliveryResult.ResponseTimeMs,
	})

	// The suppression window opens only once the partner confirmed receipt.
	// A failure here never claws back the completed routing; it is annotated
	// instead.
	if _, err := o.blackouts.Open(ctx, input.ChildID, input.SignalID); err != nil {
		o.logger.Error("blackout open failed after delivery", map[string]interface{}{
			"routing_id": record.ID,
			"error":      err.Error(),
		})
		o.annotate(ctx, record.ID, "blackout open failed: "+err.Error())
	} else {
		o.writeAudit(ctx, record, audit.EventBlackoutOpened, nil)
	}

	o.logger.Info("Signal routed", map[string]interface{}{
		"routing_id":    record.ID,
		"signal_id":     input.SignalID,
		"partner_id":    partner.PartnerID,
		"used_fallback": selection.UsedFallback,
		"attempts":      deliveryResult.Attempts,
	})

	return &models.RouteResult{
		Success:          true,
		RoutingID:        record.ID,
		PartnerID:        partner.PartnerID,
		UsedFallback:     selection.UsedFallback,
		PartnerReference: deliveryResult.Reference,
		Attempts:         deliveryResult.Attempts,
	}
}

// Annotate appends a trailing note to a routing record. Allowed on terminal
// records; the status never changes.
func (o *Orchestrator) Annotate(ctx context.Context, routingID, note string) error {
	if err := o.records.Annotate(ctx, routingID, note); err != nil {
		return err
	}
	record, err := o.records.Get(ctx, routingID)
	if err == nil {
		o.writeAudit(ctx, record, audit.EventAnnotation, map[string]interface{}{"note": note})
	}
	return nil
}

// Record returns the routing record for inspection.
func (o *Orchestrator) Record(ctx context.Context, routingID string) (*models.RoutingRecord, error) {
	return o.records.Get(ctx, routingID)
}

func (o *Orchestrator) selectPartner(ctx context.Context, jurisdiction string) (*selector.Selection, error) {
	registry, err := o.partners.Registry(ctx)
	if err != nil {
		return nil, stderrors.NewStoreFailureError("registry", err)
	}
	partners, err := o.partners.Partners(ctx)
	if err != nil {
		return nil, stderrors.NewStoreFailureError("partners", err)
	}
	return selector.Select(jurisdiction, registry, partners, o.now())
}

// failRecord marks the record failed, audits the failure, and builds the
// outward result. LastError carries only the error code; detail stays in the
// audit trail.
func (o *Orchestrator) failRecord(ctx context.Context, record *models.RoutingRecord, stdErr *stderrors.StandardError) *models.RouteResult {
	if !stderrors.IsExpected(stdErr) {
		o.logger.Error("routing failed unexpectedly", map[string]interface{}{
			"routing_id": record.ID,
			"error_code": string(stdErr.Code),
		})
	}

	if err := o.transition(ctx, record, models.StatusFailed, func(r *models.RoutingRecord) {
		r.LastError = string(stdErr.Code)
		r.Attempts = record.Attempts
	}); err != nil {
		o.logger.Error("failed to mark record failed", map[string]interface{}{
			"routing_id": record.ID,
			"error":      err.Error(),
		})
	}

	o.writeAudit(ctx, record, audit.EventRoutingFailed, map[string]interface{}{
		"error_code": string(stdErr.Code),
		"detail":     stdErr.Details,
	})

	return o.failResult(record.ID, stdErr)
}

// failResult builds the outward failure result. Internal errors surface only
// the generic message.
func (o *Orchestrator) failResult(routingID string, stdErr *stderrors.StandardError) *models.RouteResult {
	metrics.RoutingFailures.WithLabelValues(string(stdErr.Code)).Inc()

	message := stdErr.Message
	if stderrors.GetCategory(stdErr.Code) == stderrors.CategoryInternal {
		message = "Internal routing error"
	} else if stdErr.Details != "" {
		message = fmt.Sprintf("%s (%s)", stdErr.Message, stdErr.Details)
	}

	return &models.RouteResult{
		Success:   false,
		RoutingID: routingID,
		Error: &models.RouteError{
			Code:    string(stdErr.Code),
			Message: message,
		},
	}
}

func (o *Orchestrator) transition(ctx context.Context, record *models.RoutingRecord, next models.RoutingStatus, apply func(*models.RoutingRecord)) error {
	if err := o.records.Transition(ctx, record.ID, next, apply); err != nil {
		return err
	}
	record.Status = next
	if apply != nil {
		apply(record)
	}
	return nil
}

// writeAudit appends a lifecycle event. Audit failures are logged and
// swallowed; they never alter the routing outcome.
func (o *Orchestrator) writeAudit(ctx context.Context, record *models.RoutingRecord, event string, detail map[string]interface{}) {
	entry := audit.Entry{
		RoutingID: record.ID,
		SignalID:  record.SignalID,
		Event:     event,
		PartnerID: record.PartnerID,
		Detail:    detail,
		Timestamp: o.now().UTC(),
	}
	if err := o.audit.Write(ctx, entry); err != nil {
		o.logger.Warn("audit write failed", map[string]interface{}{
			"routing_id": record.ID,
			"event":      event,
			"error":      err.Error(),
		})
	}
}

func (o *Orchestrator) annotate(ctx context.Context, routingID, note string) {
	if err := o.records.Annotate(ctx, routingID, note); err != nil {
		o.logger.Warn("annotation failed", map[string]interface{}{
			"routing_id": routingID,
			"error":      err.Error(),
		})
	}
}

func validateInput(input models.RouteInput) error {
	switch {
	case input.SignalID == "":
		return stderrors.NewInvalidInputError("signalId is required")
	case input.ChildID == "":
		return stderrors.NewInvalidInputError("childId is required")
	case input.Jurisdiction == "":
		return stderrors.NewInvalidInputError("jurisdiction is required")
	case input.SignalTimestamp.IsZero():
		return stderrors.NewInvalidInputError("signalTimestamp is required")
	}
	return nil
}
