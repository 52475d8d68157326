package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	svc := NewService(Options{
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		AppID:    "variance",
		Identity: func() string { return "anonymous" },
		Sessions: func() int { return 3 },
	})
	st := svc.Status(context.Background())
	if !st.OK {
		t.Fatalf("expected ok")
	}
	if st.LLMConfigured {
		t.Fatalf("expected llm not configured")
	}
	if st.Database != "memory" || st.Identity != "anonymous" || st.ActiveSessions != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStatusReportsUnreachableDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	st := NewService(Options{DB: db, LLMConfigured: true}).Status(context.Background())
	if st.OK {
		t.Fatalf("expected not ok")
	}
	if st.Database != "unreachable" {
		t.Fatalf("unexpected database state %q", st.Database)
	}
	if st.Identity != "none" {
		t.Fatalf("unexpected identity %q", st.Identity)
	}
}
