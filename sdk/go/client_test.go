package movetracksdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoginThenCreateMovementUsesBearer(t *testing.T) {
	var gotAuth string
	var created NewMovement
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/auth/login":
			json.NewEncoder(w).Encode(map[string]any{"token": "tok-1"})
		case "/v0/movements":
			gotAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"movement":     map[string]any{"id": "m1", "status": "pending", "version": 1},
				"notification": map[string]any{"delivered": true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	if _, err := c.Login(context.Background(), "helena@example.com", "secret-pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err := c.CreateMovement(context.Background(), NewMovement{
		Type:          "dismissal",
		EmployeeName:  "João Silva",
		SelectedTeams: []string{"it"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if created.EmployeeName != "João Silva" || out.Movement.ID != "m1" || !out.Notification.Delivered {
		t.Fatalf("unexpected round trip %+v %+v", created, out)
	}
}

func TestAPIErrorDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "mt_key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":{"code":"conflict","message":"version conflict"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "mt_key"
	_, err := c.UpdateMovement(context.Background(), "m1", map[string]any{"employee_name": "x", "expected_version": 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "conflict" || apiErr.Message != "version conflict" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestUploadAttachmentSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/movements/m1/responses/it/attachments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Attachment{Name: header.Filename, URL: "/v0/files/x", SizeBytes: int64(len(data))})
	}))
	defer srv.Close()

	att, err := New(srv.URL).UploadAttachment(context.Background(), "m1", "it", "termo.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if att.Name != "termo.pdf" || att.SizeBytes != 9 {
		t.Fatalf("unexpected attachment %+v", att)
	}
}

func TestDeleteMovementNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	if err := New(srv.URL).DeleteMovement(context.Background(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
