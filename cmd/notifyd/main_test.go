package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/model"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %q", out)
	}

	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error level should be enabled")
	}
	if _, err := newLogger(&buf, "text", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func newPublishFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "publish"}
	definePublishFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestEventFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    model.Event
		wantErr bool
	}{
		{
			name: "like on note",
			args: []string{"--kind", "like", "--sender", "1", "--receiver", "2", "--target-id", "42"},
			want: model.NewLikeEvent(1, 2, model.Target{ID: 42, Type: model.TargetNote}, ""),
		},
		{
			name: "comment on comment",
			args: []string{"--kind", "COMMENT", "--sender", "1", "--receiver", "2", "--target-id", "7", "--target-type", "comment", "--content", "hi"},
			want: model.NewCommentEvent(1, 2, model.Target{ID: 7, Type: model.TargetComment}, "hi"),
		},
		{
			name: "system without target",
			args: []string{"--kind", "3", "--receiver", "2", "--content", "notice"},
			want: model.NewSystemEvent(2, model.Target{}, "notice"),
		},
		{
			name:    "unknown kind",
			args:    []string{"--kind", "share", "--receiver", "2"},
			wantErr: true,
		},
		{
			name:    "bad target type",
			args:    []string{"--kind", "LIKE", "--sender", "1", "--receiver", "2", "--target-id", "1", "--target-type", "post"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eventFromFlags(newPublishFlags(t, tt.args...))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("12"); err != nil || id != 12 {
		t.Errorf("parseID(12) = (%d, %v)", id, err)
	}
	for _, s := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(s); err == nil {
			t.Errorf("parseID(%q) should fail", s)
		}
	}
}

func TestSplitEnv(t *testing.T) {
	t.Setenv("NOTIFY_TEST_LIST", " a:1 ,, b:2 ")
	got := splitEnv("NOTIFY_TEST_LIST")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("splitEnv = %q", got)
	}
}
