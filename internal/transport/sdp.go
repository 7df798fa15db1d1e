package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// ErrNoApplicationMLine is returned by parseOffer when the offer contains
// no m=application line; §4.3 requires one for every offer.
var ErrNoApplicationMLine = errors.New("transport: offer has no m=application line")

// mediaLine is one parsed m-line from a client offer.
type mediaLine struct {
	Kind      string // "audio" or "application"
	Index     int
	Mid       string
	Direction string // sendrecv, sendonly, recvonly, inactive
}

// offerInfo is the result of parsing a client SDP offer (§4.3 "Offer/answer").
type offerInfo struct {
	Media          []mediaLine
	HasAudio       bool
	HasApplication bool
	RemoteUfrag    string
	RemotePwd      string
}

var directionAttrs = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// parseOffer extracts the presence, mid, direction, and m-line index of
// the audio and application media sections from a client offer.
func parseOffer(offerSDP string) (offerInfo, error) {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(offerSDP)); err != nil {
		return offerInfo{}, fmt.Errorf("transport: parse offer sdp: %w", err)
	}

	var info offerInfo
	if ufrag, ok := parsed.Attribute("ice-ufrag"); ok {
		info.RemoteUfrag = ufrag
	}
	if pwd, ok := parsed.Attribute("ice-pwd"); ok {
		info.RemotePwd = pwd
	}

	for idx, md := range parsed.MediaDescriptions {
		kind := md.MediaName.Media
		if kind != "audio" && kind != "application" {
			continue
		}

		mid, _ := md.Attribute("mid")
		direction := "sendrecv"
		for _, d := range directionAttrs {
			if _, ok := md.Attribute(d); ok {
				direction = d
				break
			}
		}

		info.Media = append(info.Media, mediaLine{
			Kind:      kind,
			Index:     idx,
			Mid:       mid,
			Direction: direction,
		})

		if kind == "audio" {
			info.HasAudio = true
		} else {
			info.HasApplication = true
		}

		if info.RemoteUfrag == "" {
			if ufrag, ok := md.Attribute("ice-ufrag"); ok {
				info.RemoteUfrag = ufrag
			}
		}
		if info.RemotePwd == "" {
			if pwd, ok := md.Attribute("ice-pwd"); ok {
				info.RemotePwd = pwd
			}
		}
	}

	if !info.HasApplication {
		return offerInfo{}, ErrNoApplicationMLine
	}
	return info, nil
}

// invertDirection implements §4.3's "inverted direction (sendonly<->
// recvonly, sendrecv and inactive preserved)".
func invertDirection(d string) string {
	switch d {
	case "sendonly":
		return "recvonly"
	case "recvonly":
		return "sendonly"
	default:
		return d
	}
}

// answerParams carries everything buildAnswer needs to render the server's
// SDP answer per §4.3 step 2.
type answerParams struct {
	SessionID   uint64
	Media       []mediaLine
	ICEUfrag    string
	ICEPwd      string
	Fingerprint string // SHA-256, colon-separated uppercase hex
	SCTPPort    int
}

// buildAnswer hand-renders the answer SDP line-for-line per §4.3; the
// exact attribute set and ordering it specifies is easier to reason about
// written directly than through a generic marshaler.
func buildAnswer(p answerParams) string {
	var b strings.Builder

	mids := make([]string, 0, len(p.Media))
	for _, m := range p.Media {
		mids = append(mids, m.Mid)
	}

	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d 2 IN IP4 127.0.0.1\r\n", p.SessionID)
	fmt.Fprintf(&b, "s=-\r\n")
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "a=ice-options:trickle\r\n")
	fmt.Fprintf(&b, "a=group:BUNDLE %s\r\n", strings.Join(mids, " "))

	for _, m := range p.Media {
		switch m.Kind {
		case "audio":
			fmt.Fprintf(&b, "m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
			fmt.Fprintf(&b, "c=IN IP4 0.0.0.0\r\n")
			fmt.Fprintf(&b, "a=mid:%s\r\n", m.Mid)
			fmt.Fprintf(&b, "a=rtpmap:111 opus/48000/2\r\n")
			fmt.Fprintf(&b, "a=rtcp-mux\r\n")
			fmt.Fprintf(&b, "a=%s\r\n", invertDirection(m.Direction))
			fmt.Fprintf(&b, "a=setup:passive\r\n")
			fmt.Fprintf(&b, "a=ice-ufrag:%s\r\n", p.ICEUfrag)
			fmt.Fprintf(&b, "a=ice-pwd:%s\r\n", p.ICEPwd)
			fmt.Fprintf(&b, "a=fingerprint:sha-256 %s\r\n", p.Fingerprint)

		case "application":
			fmt.Fprintf(&b, "m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n")
			fmt.Fprintf(&b, "c=IN IP4 0.0.0.0\r\n")
			fmt.Fprintf(&b, "a=mid:%s\r\n", m.Mid)
			fmt.Fprintf(&b, "a=sctp-port:%d\r\n", p.SCTPPort)
			fmt.Fprintf(&b, "a=max-message-size:1073741823\r\n")
			fmt.Fprintf(&b, "a=setup:passive\r\n")
			fmt.Fprintf(&b, "a=ice-ufrag:%s\r\n", p.ICEUfrag)
			fmt.Fprintf(&b, "a=ice-pwd:%s\r\n", p.ICEPwd)
			fmt.Fprintf(&b, "a=fingerprint:sha-256 %s\r\n", p.Fingerprint)
		}
	}

	return b.String()
}
