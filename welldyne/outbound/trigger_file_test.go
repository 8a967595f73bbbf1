package outbound

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerFileRender(t *testing.T) {
	f := NewTriggerFile()
	f.Add("initial,Sildenafil,RX-A,John,Doe,19800115,123 Main St,,Austin,TX,78701,001001,penicillin")
	f.Add("refill,Tadalafil,RX-B,Jane,Roe,19751102,9 Oak Ave,,Dallas,TX,75001,001002,")

	rendered := string(f.Render())
	rows := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	assert.Len(t, rows, 3)
	assert.Equal(t, TriggerFileHeader, rows[0])
	assert.True(t, strings.HasPrefix(rows[1], "initial,Sildenafil"))
	assert.True(t, strings.HasSuffix(rendered, "\n"))
	assert.Equal(t, 2, f.Len())
}

func TestTriggerFileRenderEmpty(t *testing.T) {
	// A quiet window still produces a file so the partner can tell the run
	// happened.
	f := NewTriggerFile()
	assert.Equal(t, TriggerFileHeader+"\n", string(f.Render()))
	assert.Equal(t, 0, f.Len())
}

func TestFilenames(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "TRIGGER20240304043000.TXT", TriggerFilename(date, "043000"))
	assert.Equal(t, "TRIGGER20240304120000.TXT", TriggerFilename(date, "120000"))
	assert.Equal(t, "RWTMEXCEL20240304043000.TXT", EligibilityFilename(date, "043000"))
}
