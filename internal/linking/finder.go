package linking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/similarity"
)

// Match reasons, in the order they are accumulated on a candidate.
const (
	ReasonPrimaryEmail = "Primary email match"
	ReasonLinkedEmail  = "Linked email match"
	ReasonPrimaryPhone = "Primary phone match"
	ReasonLinkedPhone  = "Linked phone match"
)

const reasonSimilarName = "Similar name (%d%% match)"

// Query holds the identifying attributes to match against. Any field may
// be empty.
type Query struct {
	Email     string
	Phone     string
	Name      string
	ExcludeID string
}

func (q Query) normalized() Query {
	q.Email = identity.NormalizeEmail(q.Email)
	q.Phone = identity.NormalizePhone(q.Phone)
	return q
}

func (q Query) empty() bool {
	return q.Email == "" && q.Phone == "" && similarity.Normalize(q.Name) == ""
}

// Candidate is an existing record that plausibly belongs to the same
// person as the query.
type Candidate struct {
	ID           string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Name         string     `json:"name"`
	AuthMethods  []string   `json:"authMethods"`
	Avatar       string     `json:"avatar,omitempty"`
	GroupID      string     `json:"groupId,omitempty"`
	LastSignIn   *time.Time `json:"lastSignIn,omitempty"`
	Confidence   int        `json:"confidence"`
	MatchReasons []string   `json:"matchReasons"`
}

// HasExactIdentifierMatch reports whether the candidate matched on its
// primary email or primary phone. Only such candidates may be auto-linked.
func (c Candidate) HasExactIdentifierMatch() bool {
	return slices.Contains(c.MatchReasons, ReasonPrimaryEmail) ||
		slices.Contains(c.MatchReasons, ReasonPrimaryPhone)
}

// match accumulates the signals that fired for one record.
type match struct {
	rec       identity.Record
	emailConf int
	phoneConf int
	nameSim   int
	nameOnly  bool
	reasons   []string
}

// FindCandidates returns active records matching q by email, phone or
// name, ranked by confidence descending then id ascending, capped at the
// policy's MaxCandidates.
//
// A record matched by several signals appears once; its reasons list every
// signal that fired.
func (s *Service) FindCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	q = q.normalized()
	if q.empty() {
		return []Candidate{}, nil
	}

	matches := make(map[string]*match)
	var order []string
	get := func(rec identity.Record) *match {
		m, ok := matches[rec.ID]
		if !ok {
			m = &match{rec: rec}
			matches[rec.ID] = m
			order = append(order, rec.ID)
		}
		return m
	}
	eligible := func(rec identity.Record) bool {
		return rec.ID != q.ExcludeID && rec.Status == identity.StatusActive
	}

	if q.Email != "" {
		recs, err := s.store.FindByEmail(ctx, q.Email)
		if err != nil {
			return nil, classify("find candidates by email", err)
		}
		for _, rec := range recs {
			if !eligible(rec) {
				continue
			}
			m := get(rec)
			if rec.PrimaryEmail == q.Email {
				m.emailConf = s.policy.PrimaryEmailConfidence
				m.reasons = append(m.reasons, ReasonPrimaryEmail)
			} else {
				m.emailConf = s.policy.LinkedEmailConfidence
				m.reasons = append(m.reasons, ReasonLinkedEmail)
			}
		}
	}

	if q.Phone != "" {
		recs, err := s.store.FindByPhone(ctx, q.Phone)
		if err != nil {
			return nil, classify("find candidates by phone", err)
		}
		for _, rec := range recs {
			if !eligible(rec) {
				continue
			}
			m := get(rec)
			if rec.PrimaryPhone == q.Phone {
				m.phoneConf = s.policy.PrimaryPhoneConfidence
				m.reasons = append(m.reasons, ReasonPrimaryPhone)
			} else {
				m.phoneConf = s.policy.LinkedPhoneConfidence
				m.reasons = append(m.reasons, ReasonLinkedPhone)
			}
		}
	}

	if similarity.Normalize(q.Name) != "" {
		// Identifier matches are scored against the name directly, whether
		// or not the name scan would reach them.
		for _, id := range order {
			m := matches[id]
			m.nameSim = similarity.NameSimilarity(q.Name, m.rec.Name)
			if m.nameSim >= s.policy.NameCorroborationMin {
				m.reasons = append(m.reasons, fmt.Sprintf(reasonSimilarName, m.nameSim))
			}
		}

		// The scan reads every record sharing a key, one page at a time;
		// only the scored output is capped.
		keys := similarity.BlockingKeys(q.Name)
		after := ""
		for {
			recs, err := s.store.FindByName(ctx, keys, after, s.policy.NameScanLimit)
			if err != nil {
				return nil, classify("find candidates by name", err)
			}
			for _, rec := range recs {
				if !eligible(rec) {
					continue
				}
				if _, seen := matches[rec.ID]; seen {
					continue
				}
				sim := similarity.NameSimilarity(q.Name, rec.Name)
				if sim < s.policy.NameOnlyMin {
					continue
				}
				m := get(rec)
				m.nameSim = sim
				m.nameOnly = true
				m.reasons = append(m.reasons, fmt.Sprintf(reasonSimilarName, sim))
			}
			if len(recs) < s.policy.NameScanLimit {
				break
			}
			after = recs[len(recs)-1].ID
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, s.candidate(matches[id]))
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > s.policy.MaxCandidates {
		out = out[:s.policy.MaxCandidates]
	}
	return out, nil
}

func (s *Service) candidate(m *match) Candidate {
	var conf int
	if m.nameOnly {
		conf = s.policy.NameOnlyConfidence(m.nameSim)
	} else {
		conf = s.policy.Corroborate(s.policy.Combine(m.emailConf, m.phoneConf), m.nameSim)
	}
	return Candidate{
		ID:           m.rec.ID,
		Email:        m.rec.BestEmail(),
		Phone:        m.rec.BestPhone(),
		Name:         m.rec.Name,
		AuthMethods:  m.rec.LinkedProviders(),
		Avatar:       m.rec.Avatar,
		GroupID:      m.rec.GroupID,
		LastSignIn:   m.rec.LastSignIn,
		Confidence:   conf,
		MatchReasons: m.reasons,
	}
}
