package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/swachh/portal-core/internal/domain/model"
	apperrors "github.com/swachh/portal-core/internal/errors"
	obserrors "github.com/swachh/portal-core/internal/observability/errors"
	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/observability/notify"
	"github.com/swachh/portal-core/internal/ports"
)

const (
	opSubmitComplaint = "submit_complaint"
	opSubmitEvent     = "submit_event"
	opRegisterEvent   = "register_event"
)

// ErrNotAuthenticated is returned by read operations invoked without an identity.
var ErrNotAuthenticated error = apperrors.Unauthorized("not authenticated")

// OutcomeKind classifies a settled submission.
type OutcomeKind string

const (
	OutcomeCreated           OutcomeKind = "created"
	OutcomeRegistered        OutcomeKind = "registered"
	OutcomeAlreadyRegistered OutcomeKind = "already_registered"
	OutcomeNotAuthenticated  OutcomeKind = "not_authenticated"
	OutcomeFailed            OutcomeKind = "failed"
)

// Outcome is the settled result of a submission. Record holds the stored row
// for created and registered outcomes. Invalid is set when the failure came
// from local validation rather than the remote store.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Record  any         `json:"record,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Invalid bool        `json:"-"`
	Err     error       `json:"-"`
}

// SubmissionOptions groups dependencies for SubmissionCoordinator.
type SubmissionOptions struct {
	Sessions SessionReader
	Records  ports.RecordStore
	Sink     ports.NotificationSink
	Logger   *slog.Logger
	Metrics  *metrics.Portal
	Clock    func() time.Time
	NewID    func() string
}

// SubmissionCoordinator performs user-owned writes and reads against the
// record store. Ownership always comes from the live session, never from input.
type SubmissionCoordinator struct {
	sessions SessionReader
	records  ports.RecordStore
	sink     ports.NotificationSink
	logger   *slog.Logger
	metrics  *metrics.Portal
	now      func() time.Time
	newID    func() string
	inflight singleflight.Group
}

// NewSubmissionCoordinator constructs a new SubmissionCoordinator.
func NewSubmissionCoordinator(opts SubmissionOptions) (*SubmissionCoordinator, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session reader is required")
	}
	if opts.Records == nil {
		return nil, errors.New("record store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &SubmissionCoordinator{
		sessions: opts.Sessions,
		records:  opts.Records,
		sink:     opts.Sink,
		logger:   logger.With("component", "submission"),
		metrics:  opts.Metrics,
		now:      now,
		newID:    newID,
	}, nil
}

// SubmitComplaint stores a complaint owned by the current identity with status pending.
func (c *SubmissionCoordinator) SubmitComplaint(ctx context.Context, fields model.ComplaintFields) Outcome {
	const op = opSubmitComplaint
	userID, ok := c.owner()
	if !ok {
		return c.settle(ctx, op, "", Outcome{Kind: OutcomeNotAuthenticated}, 0)
	}
	if err := fields.Validate(); err != nil {
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: err.Error(), Invalid: true, Err: err}, 0)
	}

	rec := model.Complaint{
		ID:          c.newID(),
		Category:    fields.Category,
		Description: fields.Description,
		Location:    fields.Location,
		Status:      model.ComplaintPending,
		UserID:      userID,
		CreatedAt:   c.now().UTC(),
	}
	key := strings.Join([]string{op, userID, string(fields.Category), fields.Description, fields.Location}, "\x00")

	start := c.now()
	v, err, shared := c.inflight.Do(key, func() (any, error) {
		var stored model.Complaint
		if err := c.records.Insert(context.WithoutCancel(ctx), ports.CollectionComplaints, rec, &stored); err != nil {
			return nil, err
		}
		return stored, nil
	})
	elapsed := c.now().Sub(start)
	if err != nil {
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: remoteReason(err), Err: err}, elapsed)
	}
	if shared {
		c.logger.DebugContext(ctx, "complaint submission shared an in-flight write", "user_id", userID)
	}
	return c.settle(ctx, op, userID, Outcome{Kind: OutcomeCreated, Record: v}, elapsed)
}

// SubmitEvent stores an event created by the current identity with status upcoming.
func (c *SubmissionCoordinator) SubmitEvent(ctx context.Context, fields model.EventFields) Outcome {
	const op = opSubmitEvent
	userID, ok := c.owner()
	if !ok {
		return c.settle(ctx, op, "", Outcome{Kind: OutcomeNotAuthenticated}, 0)
	}
	if err := fields.Validate(); err != nil {
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: err.Error(), Invalid: true, Err: err}, 0)
	}

	rec := model.Event{
		ID:              c.newID(),
		Title:           fields.Title,
		Description:     fields.StoredDescription(),
		EventDate:       fields.Date,
		Location:        fields.Location,
		MaxParticipants: fields.MaxParticipants,
		Status:          model.EventUpcoming,
		CreatedBy:       userID,
		CreatedAt:       c.now().UTC(),
	}
	if fields.Time != "" {
		t := fields.Time
		rec.EventTime = &t
	}
	key := strings.Join([]string{op, userID, fields.Title, fields.Date, fields.Time, fields.Location}, "\x00")

	start := c.now()
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		var stored model.Event
		if err := c.records.Insert(context.WithoutCancel(ctx), ports.CollectionEvents, rec, &stored); err != nil {
			return nil, err
		}
		return stored, nil
	})
	elapsed := c.now().Sub(start)
	if err != nil {
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: remoteReason(err), Err: err}, elapsed)
	}
	return c.settle(ctx, op, userID, Outcome{Kind: OutcomeCreated, Record: v}, elapsed)
}

// RegisterForEvent registers the current identity for eventID. A second
// registration for the same pair settles as already_registered.
func (c *SubmissionCoordinator) RegisterForEvent(ctx context.Context, eventID string) Outcome {
	const op = opRegisterEvent
	userID, ok := c.owner()
	if !ok {
		return c.settle(ctx, op, "", Outcome{Kind: OutcomeNotAuthenticated}, 0)
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		err := errors.New("event id is required")
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: err.Error(), Invalid: true, Err: err}, 0)
	}

	rec := model.EventRegistration{
		ID:           c.newID(),
		EventID:      eventID,
		UserID:       userID,
		RegisteredAt: c.now().UTC(),
	}

	start := c.now()
	v, err, _ := c.inflight.Do(op+"\x00"+userID+"\x00"+eventID, func() (any, error) {
		var stored model.EventRegistration
		if err := c.records.Insert(context.WithoutCancel(ctx), ports.CollectionRegistrations, rec, &stored); err != nil {
			return nil, err
		}
		return stored, nil
	})
	elapsed := c.now().Sub(start)
	switch {
	case errors.Is(err, ports.ErrUniqueViolation):
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeAlreadyRegistered, Err: err}, elapsed)
	case err != nil:
		return c.settle(ctx, op, userID, Outcome{Kind: OutcomeFailed, Reason: remoteReason(err), Err: err}, elapsed)
	}
	return c.settle(ctx, op, userID, Outcome{Kind: OutcomeRegistered, Record: v}, elapsed)
}

// UpcomingEvents lists every event, soonest first. It needs no identity.
func (c *SubmissionCoordinator) UpcomingEvents(ctx context.Context) ([]model.Event, error) {
	events := []model.Event{}
	if err := c.records.Query(ctx, ports.CollectionEvents, ports.Filter{}, ports.Order{Column: "event_date"}, &events); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// MyComplaints lists the current identity's complaints, newest first.
func (c *SubmissionCoordinator) MyComplaints(ctx context.Context) ([]model.Complaint, error) {
	userID, ok := c.owner()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return c.complaintsOf(ctx, userID)
}

// MyRegistrations lists the current identity's event registrations, newest
// first, each joined with its event when visible.
func (c *SubmissionCoordinator) MyRegistrations(ctx context.Context) ([]model.RegistrationView, error) {
	userID, ok := c.owner()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	regs, err := c.registrationsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return []model.RegistrationView{}, nil
	}

	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		if !slices.Contains(ids, r.EventID) {
			ids = append(ids, r.EventID)
		}
	}
	var events []model.Event
	if err := c.records.Query(ctx, ports.CollectionEvents, ports.WhereIn("id", ids...), ports.Order{Column: "event_date"}, &events); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	byID := make(map[string]*model.Event, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	views := make([]model.RegistrationView, 0, len(regs))
	for _, r := range regs {
		views = append(views, model.RegistrationView{EventRegistration: r, Event: byID[r.EventID]})
	}
	return views, nil
}

// DashboardSummary counts the current identity's complaints and registrations.
// Both counts belong to the identity read once at the start.
func (c *SubmissionCoordinator) DashboardSummary(ctx context.Context) (model.DashboardSummary, error) {
	userID, ok := c.owner()
	if !ok {
		return model.DashboardSummary{}, ErrNotAuthenticated
	}
	complaints, err := c.complaintsOf(ctx, userID)
	if err != nil {
		return model.DashboardSummary{}, err
	}
	regs, err := c.registrationsOf(ctx, userID)
	if err != nil {
		return model.DashboardSummary{}, err
	}

	summary := model.DashboardSummary{TotalComplaints: len(complaints), Registrations: len(regs)}
	for _, cm := range complaints {
		switch cm.Status {
		case model.ComplaintPending:
			summary.PendingComplaints++
		case model.ComplaintResolved:
			summary.ResolvedComplaints++
		}
	}
	return summary, nil
}

func (c *SubmissionCoordinator) complaintsOf(ctx context.Context, userID string) ([]model.Complaint, error) {
	var out []model.Complaint
	err := c.records.Query(ctx, ports.CollectionComplaints,
		ports.Where("user_id", userID),
		ports.Order{Column: "created_at", Descending: true},
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("query complaints: %w", err)
	}
	return out, nil
}

func (c *SubmissionCoordinator) registrationsOf(ctx context.Context, userID string) ([]model.EventRegistration, error) {
	var out []model.EventRegistration
	err := c.records.Query(ctx, ports.CollectionRegistrations,
		ports.Where("user_id", userID),
		ports.Order{Column: "registered_at", Descending: true},
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	return out, nil
}

func (c *SubmissionCoordinator) owner() (string, bool) {
	sess := c.sessions.Current()
	if !sess.Authenticated() || sess.UserID() == "" {
		return "", false
	}
	return sess.UserID(), true
}

func (c *SubmissionCoordinator) settle(ctx context.Context, op, userID string, out Outcome, elapsed time.Duration) Outcome {
	c.metrics.RecordSubmission(metrics.SubmissionMetric{
		Operation: op,
		Outcome:   string(out.Kind),
		Duration:  elapsed,
		Err:       out.Err,
	})
	if out.Kind == OutcomeFailed && !out.Invalid {
		c.logger.WarnContext(ctx, "submission failed", "operation", op, "user_id", userID, "error", out.Err)
	}
	c.publish(ctx, noticeFor(op, out, userID, c.now()))
	return out
}

// publish hands the notice to the sink without waiting. The caller may have
// moved on by the time it is shown.
func (c *SubmissionCoordinator) publish(ctx context.Context, n notify.Notice) {
	if c.sink == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := c.sink.Notify(ctx, n); err != nil {
			c.logger.Warn("notification delivery failed", "outcome", n.Outcome, "error", err)
		}
	}()
}

func remoteReason(err error) string {
	if errors.Is(err, ports.ErrTransport) {
		return "The service is unavailable. Please try again."
	}
	return err.Error()
}

func noticeFor(op string, out Outcome, userID string, at time.Time) notify.Notice {
	n := notify.Notice{
		Outcome:    string(out.Kind),
		UserID:     userID,
		OccurredAt: at,
		Variant:    notify.VariantDefault,
		Metadata:   map[string]string{"operation": op},
	}
	switch out.Kind {
	case OutcomeNotAuthenticated:
		n.Title = "Please login"
		n.Variant = notify.VariantDestructive
		n.RedirectTo = LoginPath
		switch op {
		case opRegisterEvent:
			n.Description = "You need to be logged in to register for events."
		case opSubmitEvent:
			n.Description = "You need to be logged in to register an event."
		default:
			n.Description = "You need to be logged in to submit a complaint."
		}
	case OutcomeAlreadyRegistered:
		n.Title = "Already registered"
		n.Description = "You are already registered for this event."
	case OutcomeRegistered:
		n.Title = "Registered!"
		n.Description = "You have successfully registered for this event."
	case OutcomeCreated:
		if op == opSubmitEvent {
			n.Title = "Event Registered!"
			n.Description = "Your event has been submitted for approval."
		} else {
			n.Title = "Complaint Submitted!"
			n.Description = "Your complaint has been recorded and is pending review."
		}
	default:
		n.Title = "Error"
		n.Variant = notify.VariantDestructive
		n.Description = out.Reason
		if !out.Invalid {
			if class := obserrors.Classify(out.Err); class != "" {
				n.Metadata["error_class"] = class
			}
			switch op {
			case opRegisterEvent:
				n.Description = "Failed to register. Please try again."
			case opSubmitEvent:
				n.Description = "Failed to register event. Please try again."
			default:
				n.Description = "Failed to submit complaint. Please try again."
			}
		}
	}
	return n
}
