// Package edge implements speech.Synthesizer against the Edge online TTS
// service: SSML requests over a websocket, MP3 audio back in binary frames.
package edge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/speech"
)

const (
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	wssURL    = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1?TrustedClientToken=" + trustedClientToken
	voicesURL = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list?trustedclienttoken=" + trustedClientToken

	defaultVoice = "en-US-AriaNeural"
	outputFormat = "audio-24khz-48kbitrate-mono-mp3"

	// Windows file-time epoch offset, seconds.
	winEpoch = 11644473600
)

// Client synthesizes speech via the Edge service. The zero value is not
// usable; construct with New.
type Client struct {
	dialer         *websocket.Dialer
	http           *http.Client
	receiveTimeout time.Duration
}

// New returns a ready client.
func New() *Client {
	return &Client{
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		http:           &http.Client{Timeout: 10 * time.Second},
		receiveTimeout: 30 * time.Second,
	}
}

// Synthesize implements speech.Synthesizer. The returned clip is PCM16.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty utterance")
	}
	if voice == "" {
		voice = defaultVoice
	}

	conn, _, err := c.dialer.DialContext(ctx, requestURL(), header())
	if err != nil {
		return nil, fmt.Errorf("edge tts dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, configMessage()); err != nil {
		return nil, fmt.Errorf("edge tts config: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, ssmlMessage(text, voice)); err != nil {
		return nil, fmt.Errorf("edge tts request: %w", err)
	}

	mp3Data, err := c.collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	clip, err := audio.DecodeMP3(mp3Data)
	if err != nil {
		return nil, fmt.Errorf("edge tts audio: %w", err)
	}
	return clip, nil
}

// collectAudio reads frames until turn.end, accumulating the MP3 payload.
func (c *Client) collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.receiveTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return nil, fmt.Errorf("edge tts read: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			path := textFramePath(data)
			if path == "turn.end" {
				if buf.Len() == 0 {
					return nil, fmt.Errorf("edge tts: no audio received")
				}
				return buf.Bytes(), nil
			}
			// response, turn.start, audio.metadata: nothing to keep.

		case websocket.BinaryMessage:
			if len(data) < 2 {
				continue
			}
			headerLen := int(binary.BigEndian.Uint16(data[:2]))
			if headerLen+2 > len(data) {
				return nil, fmt.Errorf("edge tts: malformed binary frame")
			}
			frame := data[2:]
			if !strings.Contains(string(frame[:headerLen]), "Path:audio") {
				continue
			}
			buf.Write(frame[headerLen:])
		}
	}
	return nil, fmt.Errorf("edge tts: connection closed before turn.end")
}

// Voices implements speech.Synthesizer.
func (c *Client) Voices(ctx context.Context) ([]speech.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge tts voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("edge tts voices: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var raw []struct {
		ShortName    string `json:"ShortName"`
		FriendlyName string `json:"FriendlyName"`
		Locale       string `json:"Locale"`
		Gender       string `json:"Gender"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("edge tts voices: %w", err)
	}

	voices := make([]speech.Voice, 0, len(raw))
	for _, v := range raw {
		voices = append(voices, speech.Voice{
			ID:       v.ShortName,
			Name:     v.FriendlyName,
			Language: v.Locale,
			Gender:   v.Gender,
		})
	}
	log.Debug("edge tts voices listed", "count", len(voices))
	return voices, nil
}

func requestURL() string {
	return fmt.Sprintf("%s&ConnectionId=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=1-130.0.2849.68",
		wssURL, connectionID(), secMSGEC())
}

func header() http.Header {
	h := http.Header{}
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	h.Set("Origin", "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold")
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0")
	return h
}

func configMessage() []byte {
	return []byte("X-Timestamp:" + timestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + outputFormat + `"}}}}` + "\r\n")
}

func ssmlMessage(text, voice string) []byte {
	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>`+
			`<voice name='%s'><prosody pitch='+0Hz' rate='+0%%' volume='+0%%'>%s</prosody></voice></speak>`,
		voice, escapeXML(text))
	msg := "X-RequestId:" + connectionID() + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp() + "Z\r\n" +
		"Path:ssml\r\n\r\n" + ssml
	return []byte(msg)
}

// secMSGEC is the service's anti-abuse token: the SHA-256 of the current
// Windows file time, floored to five minutes, concatenated with the client
// token.
func secMSGEC() string {
	ticks := time.Now().UTC().Unix() + winEpoch
	ticks -= ticks % 300
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d0000000%s", ticks, trustedClientToken)))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

func connectionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

func textFramePath(data []byte) string {
	for _, line := range strings.Split(string(data), "\r\n") {
		if strings.HasPrefix(line, "Path:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Path:"))
		}
	}
	return ""
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "'", "&apos;", `"`, "&quot;")
	return r.Replace(s)
}
