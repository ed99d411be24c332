package domain

import (
	"context"
	"fmt"
	"time"
)

// EndLayout é o formato civil (data + hora) usado nos itens expiráveis.
const EndLayout = "2006-01-02 15:04"

// Candidate é um item com data de término. O core não é dono dele:
// só sabe enumerar, remover e notificar via funções registradas.
type Candidate struct {
	ID      string
	EndDate string // 2006-01-02
	EndTime string // 15:04
	Email   string
	Details string
}

// EndsAt interpreta a data/hora de término no fuso informado.
func (c Candidate) EndsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(EndLayout, c.EndDate+" "+c.EndTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("candidate %s: parse end: %w", c.ID, err)
	}
	return t, nil
}

type (
	CandidateSource func(ctx context.Context) ([]Candidate, error)
	RemovalAction   func(ctx context.Context, c Candidate) error
	NotifyAction    func(ctx context.Context, c Candidate) error
)
