package signaling

import (
	"context"
	"encoding/json"

	"github.com/concord-chat/voicecore/pkg/protocol"
)

// wireTransport registers the transport Manager's callbacks so that ICE
// candidates, data-channel opens, inbound audio, and peer closure all flow
// back into the signaling layer (§4.3). Call once, before Handler starts
// accepting connections.
func (s *Server) wireTransport() {
	s.transport.OnCandidate(func(clientID, candidateSDP string) {
		c, ok := s.clientByID(clientID)
		if !ok {
			return
		}
		s.send(c, protocol.TypeICECandidate, protocol.ICECandidatePayload{Candidate: candidateSDP})
	})

	s.transport.OnDataChannelOpen(func(clientID string) {
		s.logger.Debug().Str("client_id", clientID).Msg("data channel open")
	})

	s.transport.OnMessage(func(clientID string, payload []byte) {
		s.mu.RLock()
		engine := s.audioEng
		s.mu.RUnlock()
		if engine != nil {
			engine.ReceiveAudio(clientID, payload)
		}
	})

	s.transport.OnClosed(func(clientID string) {
		s.logger.Debug().Str("client_id", clientID).Msg("peer session closed")
	})
}

// handleOffer implements §4.3 step 1-2: parse the client's SDP offer,
// answer immediately, and let the transport layer gather ICE candidates in
// the background. DTLS/SCTP wait for start_datachannel.
func (s *Server) handleOffer(ctx context.Context, c *client, data json.RawMessage) {
	var req protocol.OfferPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed offer payload")
		return
	}

	answerSDP, err := s.transport.HandleOffer(ctx, c.clientID, req.SDP)
	if err != nil {
		s.logger.Warn().Str("client_id", c.clientID).Err(err).Msg("failed to handle offer")
		s.sendError(c, "", "failed to negotiate connection")
		return
	}

	s.send(c, protocol.TypeAnswer, protocol.AnswerPayload{SDP: answerSDP})
}

// handleICECandidate forwards a trickled candidate from the client to its
// peer session (§4.3).
func (s *Server) handleICECandidate(c *client, data json.RawMessage) {
	var req protocol.ICECandidatePayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed ice_candidate payload")
		return
	}
	if req.Complete || req.Candidate == "" {
		return
	}
	if err := s.transport.AddRemoteCandidate(c.clientID, req.Candidate); err != nil {
		s.logger.Debug().Str("client_id", c.clientID).Err(err).Msg("failed to add remote candidate")
	}
}

// handleStartDataChannel implements §4.3 "Start DataChannel": it gates the
// DTLS/SCTP handshake (and the DCEP negotiation that follows it) on the
// client's readiness signal, rather than starting that handshake the
// moment the offer is answered.
func (s *Server) handleStartDataChannel(c *client) {
	if err := s.transport.StartDataChannel(c.clientID); err != nil {
		s.logger.Debug().Str("client_id", c.clientID).Err(err).Msg("failed to start data channel handshake")
	}
}
