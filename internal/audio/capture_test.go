package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestPCM16DBFS(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, FloorDB},
		{"odd byte", []byte{1}, FloorDB},
		{"silence", pcmOf(0, 0, 0, 0), FloorDB},
		{"full scale square", pcmOf(-32768, -32768), 0},
		{"half scale", pcmOf(16384, -16384), 20 * math.Log10(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PCM16DBFS(tt.pcm)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("PCM16DBFS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeterThrottlesAndKeepsPeak(t *testing.T) {
	m := NewMeter(100 * time.Millisecond)
	base := time.Unix(0, 0)

	if _, ok := m.Process(pcmOf(100), base); !ok {
		t.Fatal("first buffer should emit")
	}

	loud := pcmOf(16384, -16384)
	quiet := pcmOf(10, -10)
	if _, ok := m.Process(loud, base.Add(30*time.Millisecond)); ok {
		t.Fatal("emitted inside the interval")
	}
	db, ok := m.Process(quiet, base.Add(100*time.Millisecond))
	if !ok {
		t.Fatal("expected emit after interval")
	}
	if math.Abs(db-PCM16DBFS(loud)) > 1e-9 {
		t.Errorf("emitted %v, want the interval peak %v", db, PCM16DBFS(loud))
	}
}

func TestClassifyDeviceError(t *testing.T) {
	err := classifyDeviceError("open", errors.New("Permission denied by host"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	err = classifyDeviceError("open", errors.New("device busy"))
	if !errors.Is(err, ErrResource) {
		t.Errorf("expected ErrResource, got %v", err)
	}
}

func TestWAVHeader(t *testing.T) {
	wav := wavHeader(6, 1, 16000)

	if len(wav) != wavHeaderSize {
		t.Fatalf("len = %d, want %d", len(wav), wavHeaderSize)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q", wav[:40])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 6 {
		t.Errorf("data size = %d", got)
	}
}

func TestSpoolWritesWAVToDisk(t *testing.T) {
	dir := t.TempDir()
	archive := &Archive{Dir: dir, SampleRate: 16000}

	spool, err := archive.Begin(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	spool.Write(pcmOf(1, 2, 3))
	spool.Write(pcmOf(4, 5))

	path, size, err := spool.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if filepath.Base(path) != "session_2024-05-01_12-00-00.wav" {
		t.Errorf("path = %s", path)
	}
	if size != 10 {
		t.Errorf("size = %d, want 10", size)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) != wavHeaderSize+10 {
		t.Fatalf("file length = %d, want %d", len(data), wavHeaderSize+10)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 10 {
		t.Errorf("header data size = %d, want 10", got)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 46 {
		t.Errorf("riff size = %d, want 46", got)
	}
	if !bytes.Equal(data[wavHeaderSize:], append(pcmOf(1, 2, 3), pcmOf(4, 5)...)) {
		t.Errorf("pcm = %v", data[wavHeaderSize:])
	}
}

func TestSpoolFinishEmptySession(t *testing.T) {
	dir := t.TempDir()
	spool, err := (&Archive{Dir: dir, SampleRate: 16000}).Begin(time.Now())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	path, err := spool.Finish()
	if err != nil || path != "" {
		t.Fatalf("Finish = %q, %v", path, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover files: %v", entries)
	}
}
