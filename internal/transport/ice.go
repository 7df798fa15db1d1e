package transport

import (
	"context"
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// newICEAgent builds a pion ICE agent acting as the controlled side: the
// client (browser/game client) is always the ICE-controlling offerer,
// matching ordinary WebRTC convention (§4.3 "ICE (trickle, server is
// controlled/answerer)").
func newICEAgent(stunServers []string, loggerFactory logging.LoggerFactory) (*ice.Agent, error) {
	var urls []*stun.URI
	for _, s := range stunServers {
		if s == "" {
			continue
		}
		uri, err := stun.ParseURI(s)
		if err != nil {
			return nil, fmt.Errorf("transport: parse stun uri %q: %w", s, err)
		}
		urls = append(urls, uri)
	}

	cfg := &ice.AgentConfig{
		Urls:               urls,
		NetworkTypes:       []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		LoggerFactory:      loggerFactory,
		CandidateTypes:     []ice.CandidateType{ice.CandidateTypeHost, ice.CandidateTypeServerReflexive},
		InsecureSkipVerify: true,
	}

	agent, err := ice.NewAgent(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: new ice agent: %w", err)
	}
	return agent, nil
}

// iceSide bundles the local credentials and state callbacks for one peer's
// ICE agent, so peer.go can treat ICE setup as a single unit of work.
type iceSide struct {
	agent *ice.Agent
}

func newICESide(stunServers []string, loggerFactory logging.LoggerFactory) (*iceSide, error) {
	agent, err := newICEAgent(stunServers, loggerFactory)
	if err != nil {
		return nil, err
	}
	return &iceSide{agent: agent}, nil
}

// localCredentials returns this agent's ufrag/pwd for the SDP answer.
func (s *iceSide) localCredentials() (ufrag, pwd string, err error) {
	return s.agent.GetLocalUserCredentials()
}

// gatherCandidates starts local candidate gathering and forwards every
// discovered candidate to onCandidate, matching §4.3's trickle-ICE flow:
// the answer is sent before gathering completes, and candidates trickle
// afterward.
func (s *iceSide) gatherCandidates(onCandidate func(ice.Candidate)) error {
	if err := s.agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			return // nil signals end-of-candidates
		}
		onCandidate(c)
	}); err != nil {
		return fmt.Errorf("transport: register candidate handler: %w", err)
	}
	if err := s.agent.GatherCandidates(); err != nil {
		return fmt.Errorf("transport: gather candidates: %w", err)
	}
	return nil
}

// addRemoteCandidate parses and adds one trickled remote candidate
// (§4.3 "ice_candidate" message).
func (s *iceSide) addRemoteCandidate(candidateSDP string) error {
	if candidateSDP == "" {
		return nil // empty candidate marks end-of-candidates; ICE agent needs no signal
	}
	c, err := ice.UnmarshalCandidate(candidateSDP)
	if err != nil {
		return fmt.Errorf("transport: unmarshal remote candidate: %w", err)
	}
	return s.agent.AddRemoteCandidate(c)
}

// onConnectionStateChange registers a callback for ICE connection state
// transitions (§4.3's Connected/Failed events driving the peer session
// state machine).
func (s *iceSide) onConnectionStateChange(fn func(ice.ConnectionState)) error {
	return s.agent.OnConnectionStateChange(fn)
}

// accept completes the ICE handshake as the controlled (answerer) side
// over the given remote ufrag/pwd, blocking until connected or ctx is
// cancelled.
func (s *iceSide) accept(ctx context.Context, remoteUfrag, remotePwd string) (*ice.Conn, error) {
	conn, err := s.agent.Accept(ctx, remoteUfrag, remotePwd)
	if err != nil {
		return nil, fmt.Errorf("transport: ice accept: %w", err)
	}
	return conn, nil
}

func (s *iceSide) close() error {
	return s.agent.Close()
}
