package codec2

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Well-known MediaFormat keys.
const (
	KeyMime         = "mime"
	KeyWidth        = "width"
	KeyHeight       = "height"
	KeyChannelCount = "channel-count"
	KeySampleRate   = "sample-rate"
	KeyEncoder      = "encoder"
	KeySurface      = "surface"
)

// Raw (uncompressed) MIME types.
const (
	MimeAudioRaw = "audio/raw"
	MimeVideoRaw = "video/raw"
)

// Compressed MIME types this package knows how to recognize.
const (
	MimeVideoVP8  = "video/VP8"
	MimeVideoVP9  = "video/VP9"
	MimeVideoAV1  = "video/AV1"
	MimeVideoH264 = "video/H264"
	MimeAudioOpus = "audio/opus"
	MimeAudioAAC  = "audio/AAC"
)

// MediaFormat is an opaque key/value bag describing a media stream or a
// configuration request. Keys are free-form strings; the Key* constants
// cover the fields this package reads and writes. Values the session core
// writes are string, int and bool.
type MediaFormat map[string]any

// GetString returns the string value stored under key.
func (f MediaFormat) GetString(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// GetInt returns the integer value stored under key. Common integer
// widths are accepted.
func (f MediaFormat) GetInt(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint32:
		return int(v), true
	default:
		return 0, false
	}
}

// GetBool returns the boolean value stored under key. Integer values are
// accepted as 0/non-0.
func (f MediaFormat) GetBool(key string) (bool, bool) {
	switch v := f[key].(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int32:
		return v != 0, true
	default:
		return false, false
	}
}

// Clone returns a shallow copy of the format.
func (f MediaFormat) Clone() MediaFormat {
	if f == nil {
		return nil
	}
	out := make(MediaFormat, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Decode populates out, a pointer to a struct with mapstructure tags,
// from the format's fields. Unknown keys are ignored.
func (f MediaFormat) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(f))
}

// VideoFormatInfo is a typed view of the video fields of a MediaFormat.
type VideoFormatInfo struct {
	Mime   string `mapstructure:"mime"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// AudioFormatInfo is a typed view of the audio fields of a MediaFormat.
type AudioFormatInfo struct {
	Mime         string `mapstructure:"mime"`
	ChannelCount int    `mapstructure:"channel-count"`
	SampleRate   int    `mapstructure:"sample-rate"`
}

func isAudioMime(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "audio/")
}

func rawMimeFor(mime string) string {
	if isAudioMime(mime) {
		return MimeAudioRaw
	}
	return MimeVideoRaw
}
