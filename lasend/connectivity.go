package lasend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/lasen/background"
	"github.com/hazyhaar/lasen/correction"
)

// RegisterConnectivity registers the backend operations as local services
// on a background Router, so a broker can run without the HTTP hop.
//
// Registered services (payloads are the HTTP endpoint bodies):
//
//	lasen_correct   {text}          -> {correctedText}
//	lasen_validate  {text}          -> {success, incorrectWords}
//	lasen_dialect   {text, dialect} -> {convertedText}
func (s *Service) RegisterConnectivity(router *background.Router) {
	router.RegisterLocal(background.ServiceCorrect, s.handleCorrectService)
	router.RegisterLocal(background.ServiceValidate, s.handleValidateService)
	router.RegisterLocal(background.ServiceDialect, s.handleDialectService)
}

func (s *Service) handleCorrectService(ctx context.Context, payload []byte) ([]byte, error) {
	var req correction.TextRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out, err := s.Correct(ctx, req.Text, correction.SourceExtension)
	if err != nil {
		return nil, err
	}
	return json.Marshal(correction.CorrectResponse{CorrectedText: out})
}

func (s *Service) handleValidateService(ctx context.Context, payload []byte) ([]byte, error) {
	var req correction.TextRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	ranges, err := s.Validate(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(correction.ValidateResponse{Success: true, IncorrectWords: ranges})
}

func (s *Service) handleDialectService(ctx context.Context, payload []byte) ([]byte, error) {
	var req correction.DialectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out, err := s.ConvertDialect(ctx, req.Text, req.Dialect)
	if err != nil {
		return nil, err
	}
	return json.Marshal(correction.DialectResponse{ConvertedText: out})
}
