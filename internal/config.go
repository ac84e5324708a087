package internal

import (
	"fmt"
	"strings"
	"time"

	"chat-core/domain"
)

type Config struct {
	BadgerFilepath      string        `env:"BADGER_FILEPATH,required=true"`
	Participants        string        `env:"PARTICIPANTS,required=true"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	MaxContentLength    int           `env:"MAX_CONTENT_LENGTH,default=50000"`
	DefaultMessageLimit int           `env:"DEFAULT_MESSAGE_LIMIT,default=50"`
	SinkBufferSize      int           `env:"SINK_BUFFER_SIZE,default=64"`
	SinkTimeout         time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval      time.Duration `env:"METRIC_INTERVAL,default=5s"`
	MaskedWords         string        `env:"MASKED_WORDS"`
	CharReplacement     string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Roster parses the comma-separated participant list into the closed
// set the whole core operates on.
func (c Config) Roster() (domain.Roster, error) {
	var members []domain.Participant
	for _, raw := range strings.Split(c.Participants, ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			members = append(members, domain.Participant(trimmed))
		}
	}
	return domain.NewRoster(members...)
}

// MaskedWordList splits the optional masked-words configuration.
// An empty value disables the sanitizer entirely.
func (c Config) MaskedWordList() []string {
	if c.MaskedWords == "" {
		return nil
	}
	var words []string
	for _, raw := range strings.Split(c.MaskedWords, ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			words = append(words, trimmed)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
