package arg

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

func TestParseDelta(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"+15", 15, false},
		{"20", 20, false},
		{"-30", -30, false},
		{"0", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDelta(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPrintView(t *testing.T) {
	var buf bytes.Buffer
	printView(&buf, render.View{})
	assert.Equal(t, "No students on the board\n", buf.String())

	now := time.Date(2026, 3, 9, 14, 20, 0, 0, time.UTC)
	rec := *session.NewRecord("김도윤", now.Add(-40*time.Minute), 90)
	buf.Reset()
	printView(&buf, render.NewView([]session.Record{rec}, nil, now))
	assert.Contains(t, buf.String(), "김도윤")
	assert.Contains(t, buf.String(), "50분 남음")
	assert.Contains(t, buf.String(), "오후 3:10")
}

func TestEndPolicy(t *testing.T) {
	assert.Equal(t, "auto depart", endPolicy(true))
	assert.Equal(t, "overrun alert", endPolicy(false))
}
