package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/journey"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ParticipantBackend reads and updates participants and competitions upstream.
type ParticipantBackend interface {
	ParticipantSource
	UpdateParticipantVideo(ctx context.Context, participantID string, video domain.VideoRound) (domain.Participant, error)
	UpdateQuizSettings(ctx context.Context, competitionID string, settings domain.QuizSettings) (domain.Competition, error)
}

// QuizCache drops cached quiz content for a competition.
type QuizCache interface {
	Invalidate(ctx context.Context, competitionID string) error
}

// JourneyOption customizes a JourneyService.
type JourneyOption func(*JourneyService)

// WithQuizCache invalidates cached quizzes whenever their settings change.
func WithQuizCache(cache QuizCache) JourneyOption {
	return func(s *JourneyService) { s.cache = cache }
}

// JourneyView is a journey plus the round 2 view to show.
type JourneyView struct {
	domain.Journey
	VideoStage domain.VideoStage `json:"videoStage"`
}

// VideoSubmission is the participant's round 2 input.
type VideoSubmission struct {
	VideoURL string `json:"videoUrl" validate:"required,url,max=2048"`
}

// JourneyService serves journey views and the round actions that gate on them.
type JourneyService struct {
	backend   ParticipantBackend
	evaluator *journey.Evaluator
	validate  *validator.Validate
	cache     QuizCache
	logger    *zap.Logger
	now       func() time.Time
}

func NewJourneyService(backend ParticipantBackend, logger *zap.Logger, opts ...JourneyOption) *JourneyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &JourneyService{
		backend:   backend,
		evaluator: journey.NewEvaluator(logger),
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View evaluates a participant record without touching the backend.
func (s *JourneyService) View(p domain.Participant) (JourneyView, error) {
	j, err := s.evaluator.Evaluate(p)
	if err != nil {
		return JourneyView{}, err
	}
	stage, err := journey.VideoStage(p)
	if err != nil {
		return JourneyView{}, err
	}
	return JourneyView{Journey: j, VideoStage: stage}, nil
}

// Journey fetches a participant and evaluates it.
func (s *JourneyService) Journey(ctx context.Context, participantID string) (JourneyView, error) {
	p, err := s.backend.GetParticipant(ctx, participantID)
	if err != nil {
		return JourneyView{}, err
	}
	return s.View(p)
}

// SubmitVideo records the round 2 video URL once the form is showing.
func (s *JourneyService) SubmitVideo(ctx context.Context, participantID string, in VideoSubmission) (JourneyView, error) {
	if err := s.validate.Struct(in); err != nil {
		return JourneyView{}, validationError(err)
	}

	p, err := s.backend.GetParticipant(ctx, participantID)
	if err != nil {
		return JourneyView{}, err
	}
	stage, err := journey.VideoStage(p)
	if err != nil {
		return JourneyView{}, err
	}
	if stage != domain.VideoForm {
		return JourneyView{}, fmt.Errorf("%w: video round is %s", domain.ErrRoundNotAvailable, stage)
	}

	submittedAt := s.now().UTC()
	updated, err := s.backend.UpdateParticipantVideo(ctx, participantID, domain.VideoRound{
		Status:      domain.StatusSubmitted,
		VideoURL:    in.VideoURL,
		SubmittedAt: &submittedAt,
	})
	if err != nil {
		return JourneyView{}, err
	}
	s.logger.Info("video submitted", zap.String("participant", participantID))
	return s.View(updated)
}

// UpdateQuizSettings validates settings locally and only then sends them upstream.
func (s *JourneyService) UpdateQuizSettings(ctx context.Context, competitionID string, settings domain.QuizSettings) (domain.Competition, error) {
	if err := ValidateQuizSettings(s.validate, settings); err != nil {
		return domain.Competition{}, err
	}
	competition, err := s.backend.UpdateQuizSettings(ctx, competitionID, settings)
	if err != nil {
		return domain.Competition{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, competitionID); err != nil {
			s.logger.Warn("quiz cache invalidation failed", zap.String("competition", competitionID), zap.Error(err))
		}
	}
	return competition, nil
}

// ValidateQuizSettings checks field ranges and that the difficulty
// distribution adds up to the total question count.
func ValidateQuizSettings(v *validator.Validate, settings domain.QuizSettings) error {
	if err := v.Struct(settings); err != nil {
		return validationError(err)
	}
	if got := settings.Distribution.Total(); got != settings.TotalQuestions {
		return fmt.Errorf("%w: distribution totals %d, expected %d questions", domain.ErrValidation, got, settings.TotalQuestions)
	}
	return nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return fmt.Errorf("%w: %s failed %s", domain.ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}
