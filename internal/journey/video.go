package journey

import "gig-geni-service/internal/domain"

// VideoStage picks the round 2 view: a submission form while the round is
// current and nothing is under review, a read-only view once a URL is in.
func VideoStage(p domain.Participant) (domain.VideoStage, error) {
	display, err := EvaluateRound(domain.RoundVideo, p)
	if err != nil {
		return "", err
	}
	switch display {
	case domain.DisplayCompleted, domain.DisplayFailed:
		return domain.VideoClosed, nil
	case domain.DisplayCurrent:
		switch p.Round2Video.Status.Normalize() {
		case domain.StatusSubmitted, domain.StatusPending:
			return domain.VideoUnderReview, nil
		}
		return domain.VideoForm, nil
	}
	return domain.VideoLocked, nil
}
