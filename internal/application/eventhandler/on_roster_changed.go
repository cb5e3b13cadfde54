// Package eventhandler содержит обработчики доменных событий.
// Обработчики - "реактивная" часть системы: они реагируют на изменения
// реестра и запускают побочные эффекты, например выгрузку проекций.
package eventhandler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/pkg/circuitbreaker"
	"github.com/alem-hub/gradebook/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ROSTER CHANGED HANDLER
// При зачислении или новой оценке берёт свежий отсортированный снимок
// средних и выгружает его во все настроенные проекции.
// ═══════════════════════════════════════════════════════════════════════════

// RosterChangedConfig содержит конфигурацию обработчика.
type RosterChangedConfig struct {
	// ProjectTimeout - лимит времени на выгрузку в одну проекцию (включая повторы).
	ProjectTimeout time.Duration

	// Retrier - политика повторов. По умолчанию retry.ProjectionRetrier().
	Retrier *retry.Retrier

	// BreakerThreshold - сколько выгрузок подряд должно провалиться
	// с временной ошибкой, чтобы проекция была отключена.
	BreakerThreshold int

	// BreakerCooldown - через сколько отключённая проекция получает пробную выгрузку.
	BreakerCooldown time.Duration
}

// DefaultRosterChangedConfig возвращает конфигурацию по умолчанию.
func DefaultRosterChangedConfig() RosterChangedConfig {
	return RosterChangedConfig{
		ProjectTimeout:   5 * time.Second,
		Retrier:          retry.ProjectionRetrier(),
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// OnRosterChangedHandler выгружает средние в проекции.
type OnRosterChangedHandler struct {
	source  gradebook.AveragesSource
	targets []*sinkTarget
	logger  *slog.Logger
	config  RosterChangedConfig
}

// sinkTarget - проекция с её предохранителем и версией последнего
// выгруженного снимка. Выгрузки в одну проекцию идут по очереди под mu,
// снимок не новее уже выгруженного пропускается.
type sinkTarget struct {
	sink    gradebook.ProjectionSink
	breaker *circuitbreaker.CircuitBreaker

	mu        sync.Mutex
	projected uint64
	hasLast   bool
}

// NewOnRosterChangedHandler создаёт новый обработчик.
func NewOnRosterChangedHandler(
	source gradebook.AveragesSource,
	sinks []gradebook.ProjectionSink,
	logger *slog.Logger,
	config RosterChangedConfig,
) *OnRosterChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Retrier == nil {
		config.Retrier = retry.ProjectionRetrier()
	}
	if config.ProjectTimeout <= 0 {
		config.ProjectTimeout = 5 * time.Second
	}

	h := &OnRosterChangedHandler{
		source:  source,
		targets: make([]*sinkTarget, 0, len(sinks)),
		logger:  logger.With("handler", "on_roster_changed"),
		config:  config,
	}

	for _, sink := range sinks {
		h.targets = append(h.targets, &sinkTarget{
			sink: sink,
			breaker: circuitbreaker.SinkBreaker(
				sink.Name(),
				config.BreakerThreshold,
				config.BreakerCooldown,
				shared.IsRetryable,
				h.logStateChange,
			),
		})
	}

	return h
}

func (h *OnRosterChangedHandler) logStateChange(name string, from, to circuitbreaker.State) {
	if to == circuitbreaker.StateOpen {
		h.logger.Warn("projection disabled", "breaker", name, "from", from.String())
		return
	}
	h.logger.Info("projection breaker state changed",
		"breaker", name,
		"from", from.String(),
		"to", to.String(),
	)
}

// Register подписывает обработчик на события реестра.
func (h *OnRosterChangedHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventStudentEnrolled, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventGradeRecorded, h.Handle)
}

// Handle обрабатывает событие изменения состава или оценок.
// Реализует интерфейс shared.EventHandler.
func (h *OnRosterChangedHandler) Handle(event shared.Event) error {
	if len(h.targets) == 0 {
		return nil
	}

	version, entries := h.source.AveragesSnapshot()
	h.logger.Debug("projecting averages",
		"event_type", event.EventType(),
		"student_id", event.AggregateID(),
		"version", version,
		"entries", len(entries),
	)

	var errs []error
	for _, target := range h.targets {
		if err := h.project(target, version, entries); err != nil {
			h.logger.Error("projection failed",
				"sink", target.sink.Name(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *OnRosterChangedHandler) project(target *sinkTarget, version uint64, entries []gradebook.AverageEntry) error {
	target.mu.Lock()
	defer target.mu.Unlock()

	sink := target.sink
	if target.hasLast && version <= target.projected {
		h.logger.Debug("stale snapshot skipped",
			"sink", sink.Name(),
			"version", version,
			"projected", target.projected,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.ProjectTimeout)
	defer cancel()

	attempt := 0
	err := target.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.config.Retrier.Do(ctx, func(ctx context.Context) error {
			attempt++
			err := sink.Project(ctx, entries)
			if err != nil && shared.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return err
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		// Снимок пропущен, следующее событие выгрузит актуальное состояние целиком.
		return shared.WrapError("projection", "Project", shared.ErrProjectionFailed,
			"sink "+sink.Name()+" is disabled", err)
	}
	if err != nil {
		return shared.WrapError("projection", "Project", shared.ErrProjectionFailed,
			"sink "+sink.Name(), err)
	}

	target.projected = version
	target.hasLast = true
	h.logger.Debug("averages projected", "sink", sink.Name(), "version", version, "attempts", attempt)
	return nil
}
