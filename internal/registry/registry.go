// Package registry holds the team catalog and per-type checklists. A Registry is built
// once from config and never mutated afterwards.
package registry

import (
	"errors"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

type Registry struct {
	teams      []domain.Team
	byID       map[string]domain.Team
	checklists map[domain.MovementType]map[string][]string
}

func New(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		byID:       make(map[string]domain.Team, len(cfg.Teams)),
		checklists: make(map[domain.MovementType]map[string][]string, len(cfg.Checklists)),
	}
	for _, t := range cfg.Teams {
		team := domain.Team{ID: t.ID, Name: t.Name}
		r.teams = append(r.teams, team)
		r.byID[team.ID] = team
	}
	for typ, byTeam := range cfg.Checklists {
		m := make(map[string][]string, len(byTeam))
		for team, items := range byTeam {
			m[team] = append([]string(nil), items...)
		}
		r.checklists[domain.MovementType(typ)] = m
	}
	return r, nil
}

// Teams returns the full catalog in configured order.
func (r *Registry) Teams() []domain.Team {
	return append([]domain.Team(nil), r.teams...)
}

// TeamsFor returns the teams eligible for a movement type. Every catalog team is
// eligible for every type; checklist coverage is what differs.
func (r *Registry) TeamsFor(domain.MovementType) []domain.Team {
	return r.Teams()
}

func (r *Registry) Team(id string) (domain.Team, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// TeamName returns the display name, or the id itself for unknown teams.
func (r *Registry) TeamName(id string) string {
	if t, ok := r.byID[id]; ok {
		return t.Name
	}
	return id
}

// ChecklistFor returns the ordered items gating a team's response, possibly empty.
func (r *Registry) ChecklistFor(t domain.MovementType, team string) []string {
	return append([]string(nil), r.checklists[t][team]...)
}
