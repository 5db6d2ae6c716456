package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dooshek/murmur/internal/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var ErrFFmpegNotInstalled = errors.New("FFmpeg is not installed. Please install FFmpeg to archive session recordings")

const (
	wavHeaderSize = 44

	// spoolQueue is the number of capture buffers that may wait for the
	// writer before new ones are dropped.
	spoolQueue = 64
)

func init() {
	ffmpeg.LogCompiledCommand = false
}

// Archive stores the audio of finished sessions as Ogg Vorbis files.
type Archive struct {
	Dir        string
	SampleRate int
}

// NewArchive returns an Archive writing into dir, or an error when ffmpeg is
// missing.
func NewArchive(dir string, sampleRate int) (*Archive, error) {
	if err := exec.Command("ffmpeg", "-version").Run(); err != nil {
		return nil, ErrFFmpegNotInstalled
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Archive{Dir: dir, SampleRate: sampleRate}, nil
}

// Spool streams one session's PCM into a WAV file on disk, so memory use
// does not grow with session length.
type Spool struct {
	archive   *Archive
	startedAt time.Time
	file      *os.File
	w         *bufio.Writer
	size      int64
	err       error

	chunks  chan []byte
	done    chan struct{}
	dropped atomic.Int64
}

// Begin creates session_<timestamp>.wav in the archive directory.
func (a *Archive) Begin(startedAt time.Time) (*Spool, error) {
	path := filepath.Join(a.Dir, fmt.Sprintf("session_%s.wav", startedAt.Format("2006-01-02_15-04-05")))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav: %w", err)
	}
	if _, err := f.Write(wavHeader(0, channels, a.SampleRate)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}

	s := &Spool{
		archive:   a,
		startedAt: startedAt,
		file:      f,
		w:         bufio.NewWriterSize(f, 64<<10),
		chunks:    make(chan []byte, spoolQueue),
		done:      make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Write queues a copy of pcm without blocking. Must not be called after
// Close.
func (s *Spool) Write(pcm []byte) {
	select {
	case s.chunks <- append([]byte(nil), pcm...):
	default:
		s.dropped.Add(1)
	}
}

func (s *Spool) run() {
	defer close(s.done)
	for chunk := range s.chunks {
		if s.err != nil {
			continue
		}
		n, err := s.w.Write(chunk)
		s.size += int64(n)
		s.err = err
	}
}

// Close flushes the queue and fixes the WAV header. It returns the WAV path
// and the number of PCM bytes written.
func (s *Spool) Close() (string, int64, error) {
	close(s.chunks)
	<-s.done

	err := s.err
	if err == nil {
		err = s.w.Flush()
	}
	if err == nil {
		_, err = s.file.WriteAt(wavHeader(s.size, channels, s.archive.SampleRate), 0)
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if d := s.dropped.Load(); d > 0 {
		logger.Warnf("Recording archive dropped %d capture buffers", d)
	}
	if err != nil {
		return s.file.Name(), s.size, fmt.Errorf("failed to write wav: %w", err)
	}
	return s.file.Name(), s.size, nil
}

// Finish closes the spool and converts it to Ogg Vorbis. The WAV file is
// removed afterwards. An empty session produces no file.
func (s *Spool) Finish() (string, error) {
	wavPath, size, err := s.Close()
	defer os.Remove(wavPath)
	if err != nil || size == 0 {
		return "", err
	}
	return s.archive.convert(wavPath)
}

func (a *Archive) convert(wavPath string) (string, error) {
	oggPath := strings.TrimSuffix(wavPath, ".wav") + ".ogg"

	start := time.Now()
	err := ffmpeg.Input(wavPath).
		Output(oggPath, ffmpeg.KwArgs{
			"loglevel":          "quiet",
			"acodec":            "libvorbis",
			"b:a":               "24k",
			"ar":                fmt.Sprint(a.SampleRate),
			"compression_level": "5",
			"threads":           "auto",
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		return "", fmt.Errorf("failed to convert to Ogg Vorbis: %w", err)
	}

	logger.Debugf("Archived session audio to %s in %d ms", oggPath, time.Since(start).Milliseconds())
	return oggPath, nil
}

// wavHeader returns a RIFF/WAVE header for dataSize bytes of PCM16.
func wavHeader(dataSize int64, channels int, sampleRate int) []byte {
	var buffer bytes.Buffer

	binary.Write(&buffer, binary.LittleEndian, []byte("RIFF"))
	binary.Write(&buffer, binary.LittleEndian, uint32(dataSize+36))
	binary.Write(&buffer, binary.LittleEndian, []byte("WAVE"))

	// "fmt " chunk
	binary.Write(&buffer, binary.LittleEndian, []byte("fmt "))
	binary.Write(&buffer, binary.LittleEndian, uint32(16))
	binary.Write(&buffer, binary.LittleEndian, uint16(1))
	binary.Write(&buffer, binary.LittleEndian, uint16(channels))
	binary.Write(&buffer, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buffer, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buffer, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buffer, binary.LittleEndian, uint16(16))

	// "data" chunk
	binary.Write(&buffer, binary.LittleEndian, []byte("data"))
	binary.Write(&buffer, binary.LittleEndian, uint32(dataSize))

	return buffer.Bytes()
}
