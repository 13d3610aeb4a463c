package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"movetrack/internal/db"
	"movetrack/internal/domain"
	"movetrack/internal/migrate"
	"movetrack/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func sampleMovement(id, createdAt string) domain.Movement {
	deadline := "2025-11-13"
	return domain.Movement{
		ID:            id,
		Type:          domain.TypeDismissal,
		EmployeeName:  "João Silva",
		SelectedTeams: []string{"finance", "it"},
		Status:        domain.StatusPending,
		Responses: map[string]domain.TeamResponse{
			"finance": {Status: domain.StatusPending, Checklist: map[string]bool{}},
			"it":      {Status: domain.StatusPending, Checklist: map[string]bool{}},
		},
		Details:   domain.Details{Observation: "last day friday", Dismissal: &domain.DismissalDetails{Company: "ACME"}},
		Deadline:  &deadline,
		CreatedAt: createdAt,
		CreatedBy: "Admin",
		UpdatedAt: createdAt,
	}
}

func TestMovementRoundTripWithResponses(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	m := sampleMovement("m1", "2025-11-10T10:00:00Z")
	if err := r.InsertMovement(ctx, nil, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	submitted := "2025-11-10"
	resp := domain.TeamResponse{
		Status:        domain.StatusCompleted,
		Comment:       "Access revoked",
		SubmittedDate: &submitted,
		Checklist:     map[string]bool{"System access revoked": true},
		Attachments:   []domain.Attachment{{Name: "a.pdf", URL: "/v0/files/a.pdf", SizeBytes: 3}},
	}
	if err := r.UpsertResponse(ctx, nil, "m1", "it", resp); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.AppendHistory(ctx, nil, "m1", "it", domain.HistoryEntry{ActorName: "Ana", ActorEmail: "ana@example.com", Action: domain.ActionCreated, Timestamp: "2025-11-10T11:00:00Z"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	got, err := r.GetMovement(ctx, nil, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Details.Dismissal == nil || got.Details.Dismissal.Company != "ACME" {
		t.Fatalf("unexpected movement %+v", got)
	}
	it := got.Responses["it"]
	if it.Status != domain.StatusCompleted || len(it.History) != 1 || len(it.Attachments) != 1 || !it.Checklist["System access revoked"] {
		t.Fatalf("unexpected it response %+v", it)
	}
	if fin := got.Responses["finance"]; fin.Status != domain.StatusPending || fin.History == nil {
		t.Fatalf("unexpected finance response %+v", fin)
	}
	if _, err := r.GetMovement(ctx, nil, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMovementVersionCheck(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	if err := r.InsertMovement(ctx, nil, sampleMovement("m1", "2025-11-10T10:00:00Z")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	name := "Joao S."
	v, err := r.UpdateMovement(ctx, nil, "m1", repo.MovementFields{EmployeeName: &name, ClearDeadline: true}, 1)
	if err != nil || v != 2 {
		t.Fatalf("update: v=%d err=%v", v, err)
	}
	if _, err := r.UpdateMovement(ctx, nil, "m1", repo.MovementFields{EmployeeName: &name}, 1); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := r.UpdateMovement(ctx, nil, "nope", repo.MovementFields{EmployeeName: &name}, 0); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := r.GetMovement(ctx, nil, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EmployeeName != name || got.Deadline != nil {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestDeleteMovementCascades(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	if err := r.InsertMovement(ctx, nil, sampleMovement("m1", "2025-11-10T10:00:00Z")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.RecordReminder(ctx, nil, "m1", "2025-11-10", 3, 2, "2025-11-10T08:00:00Z"); err != nil {
		t.Fatalf("record reminder: %v", err)
	}
	if err := r.DeleteMovement(ctx, nil, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int
	if err := r.DB.QueryRow(`SELECT count(*) FROM team_responses WHERE movement_id='m1'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("responses left behind: %d (%v)", n, err)
	}
	if err := r.DeleteMovement(ctx, nil, "m1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestListMovementsFilters(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	older := sampleMovement("m1", "2025-11-09T10:00:00Z")
	newer := sampleMovement("m2", "2025-11-10T10:00:00Z")
	newer.SelectedTeams = []string{"timekeeping"}
	newer.Responses = map[string]domain.TeamResponse{"timekeeping": {Status: domain.StatusPending}}
	newer.Deadline = nil
	for _, m := range []domain.Movement{older, newer} {
		if err := r.InsertMovement(ctx, nil, m); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}
	all, err := r.ListMovements(ctx, repo.MovementFilters{})
	if err != nil || len(all) != 2 || all[0].ID != "m2" {
		t.Fatalf("expected newest first, got %v (%v)", all, err)
	}
	byTeam, err := r.ListMovements(ctx, repo.MovementFilters{Team: "it"})
	if err != nil || len(byTeam) != 1 || byTeam[0].ID != "m1" {
		t.Fatalf("team filter: %v (%v)", byTeam, err)
	}
	withDeadline, err := r.ListMovements(ctx, repo.MovementFilters{WithDeadline: true, OpenOnly: true})
	if err != nil || len(withDeadline) != 1 || withDeadline[0].ID != "m1" {
		t.Fatalf("deadline filter: %v (%v)", withDeadline, err)
	}
	if len(withDeadline[0].Responses) != 2 {
		t.Fatalf("responses not loaded for list")
	}
}

func TestUsersByTeams(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	users := []domain.User{
		{ID: "u1", Name: "Ana", Email: "Ana@Example.com", Teams: []string{"it", "finance"}, Role: domain.RoleTeamMember, CreatedAt: "2025-11-01T00:00:00Z"},
		{ID: "u2", Name: "Bruno", Email: "bruno@example.com", Teams: []string{"timekeeping"}, Role: domain.RoleAdmin, CanManageDismissals: true, CreatedAt: "2025-11-01T00:00:00Z"},
	}
	for _, u := range users {
		if err := r.InsertUser(ctx, nil, u, "hash"); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}
	dup := users[0]
	dup.ID = "u3"
	if err := r.InsertUser(ctx, nil, dup, "hash"); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
	got, err := r.UsersByTeams(ctx, []string{"finance"})
	if err != nil || len(got) != 1 || got[0].ID != "u1" || len(got[0].Teams) != 2 {
		t.Fatalf("users by team: %+v (%v)", got, err)
	}
	u, hash, err := r.GetUserByEmail(ctx, " ANA@example.com")
	if err != nil || u.ID != "u1" || hash != "hash" {
		t.Fatalf("get by email: %+v %q %v", u, hash, err)
	}
	admin, err := r.GetUser(ctx, nil, "u2")
	if err != nil || !admin.IsAdmin() || !admin.CanManageDismissals || admin.CanManageTransfersEtc {
		t.Fatalf("get user: %+v %v", admin, err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	if err := r.InsertUser(ctx, nil, domain.User{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleAdmin, CreatedAt: "2025-11-01T00:00:00Z"}, "hash"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	key := domain.APIKey{ID: "k1", UserID: "u1", Name: "cron", KeyHash: repo.HashAPIKey(" secret ")}
	if err := r.InsertAPIKey(ctx, (*sql.Tx)(nil), key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	if err != nil || got.UserID != "u1" || got.Name != "cron" {
		t.Fatalf("get key: %+v %v", got, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestReminderLogAndRetries(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	if err := r.InsertMovement(ctx, nil, sampleMovement("m1", "2025-11-10T10:00:00Z")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.RecordReminder(ctx, nil, "m1", "2025-11-10", 3, 2, "2025-11-10T09:00:00Z"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if sent, err := r.ReminderSentOn(ctx, "m1", "2025-11-10"); err != nil || !sent {
		t.Fatalf("sent on = %v %v", sent, err)
	}
	if sent, _ := r.ReminderSentOn(ctx, "m1", "2025-11-11"); sent {
		t.Fatalf("another day must not count as sent")
	}
	for _, sink := range []string{"webhook", "mail", "webhook"} {
		if err := r.RecordReminderRetry(ctx, nil, "m1", "2025-11-10", sink, 3, "2025-11-10T09:00:00Z"); err != nil {
			t.Fatalf("record retry: %v", err)
		}
	}
	sinks, err := r.ReminderRetrySinks(ctx, "m1", "2025-11-10")
	if err != nil || len(sinks) != 2 || sinks[0] != "mail" || sinks[1] != "webhook" {
		t.Fatalf("retry sinks = %v %v", sinks, err)
	}
	if err := r.ClearReminderRetry(ctx, nil, "m1", "2025-11-10", "mail"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sinks, _ = r.ReminderRetrySinks(ctx, "m1", "2025-11-10")
	if len(sinks) != 1 || sinks[0] != "webhook" {
		t.Fatalf("after clear = %v", sinks)
	}
	if err := r.DeleteMovement(ctx, nil, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if sinks, _ := r.ReminderRetrySinks(ctx, "m1", "2025-11-10"); len(sinks) != 0 {
		t.Fatalf("retries should cascade with the movement: %v", sinks)
	}
}
