package media

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// readTimeout lets the read loop periodically re-check the stop flag.
	readTimeout = 100 * time.Millisecond

	// frameInterval is the G.711 packetization time.
	frameInterval = 20 * time.Millisecond

	// frameSamples is the number of samples in one 20ms frame at 8kHz.
	frameSamples = 160
)

// Session is one call's RTP leg. It owns a UDP socket, feeds received audio
// to an optional Recorder, surfaces in-band telephone-event digits, and
// sends silence frames so NAT bindings stay open while the microphone-less
// endpoint has nothing to say.
//
// Symmetric RTP: the remote address is initialized from SDP and replaced by
// the source of the first valid packet, which handles peers behind NAT.
type Session struct {
	conn   *net.UDPConn
	logger *slog.Logger

	remote      atomic.Pointer[net.UDPAddr]
	payloadType atomic.Int32
	muted       atomic.Bool
	held        atomic.Bool
	stopped     atomic.Bool

	recorder *Recorder
	onDigit  func(rune)

	// sender state, touched only by the send loop.
	seq       uint16
	timestamp uint32
	ssrc      uint32

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewSession binds a UDP socket for one call leg. bindIP selects the local
// interface; an empty string binds all interfaces. The kernel assigns the
// port, readable via Port before building the SDP.
func NewSession(bindIP string, logger *slog.Logger) (*Session, error) {
	laddr := &net.UDPAddr{IP: net.ParseIP(bindIP)}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("binding rtp socket: %w", err)
	}

	s := &Session{
		conn:   conn,
		logger: logger.With("subsystem", "rtp", "local_port", conn.LocalAddr().(*net.UDPAddr).Port),
		ssrc:   rand.Uint32(),
		seq:    uint16(rand.Uint32()),
	}
	s.payloadType.Store(PayloadPCMU)
	return s, nil
}

// Port returns the local RTP port for SDP offers and answers.
func (s *Session) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// SetRecorder attaches a recorder for received audio. Must be called before
// Start.
func (s *Session) SetRecorder(rec *Recorder) {
	s.recorder = rec
}

// OnDigit registers a callback for received telephone-event digits. Must be
// called before Start. The callback runs on the read loop goroutine.
func (s *Session) OnDigit(fn func(rune)) {
	s.onDigit = fn
}

// Start begins the read and send loops toward the negotiated peer. Calling
// Start again only updates the remote address and payload type, which is
// how a re-INVITE retargets the stream.
func (s *Session) Start(remote *net.UDPAddr, payloadType int) {
	s.remote.Store(remote)
	s.payloadType.Store(int32(payloadType))

	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.readLoop()
		go s.sendLoop()
		s.logger.Info("rtp session started",
			"remote", remote.String(),
			"payload_type", payloadType,
		)
	})
}

// SetMuted controls whether outbound audio frames are sent.
func (s *Session) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// SetHeld pauses both directions while the call is on hold. Received
// packets are discarded rather than recorded.
func (s *Session) SetHeld(held bool) {
	s.held.Store(held)
}

// Stats returns packet counters for teardown logging.
func (s *Session) Stats() (in, out uint64) {
	return s.packetsIn.Load(), s.packetsOut.Load()
}

// Close stops the loops and releases the socket. The attached recorder is
// not stopped here; its owner finalizes it to collect the file path.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.wg.Wait()
		s.conn.Close()

		in, out := s.Stats()
		s.logger.Info("rtp session closed", "packets_in", in, "packets_out", out)
	})
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, maxRTPPacket)
	learned := false
	lastDigitSeq := uint16(0)
	digitActive := false

	for !s.stopped.Load() {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, srcAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if s.stopped.Load() {
				return
			}
			s.logger.Debug("rtp read error", "error", err)
			continue
		}

		pkt := buf[:n]
		pt := rtpPayloadType(pkt)
		if pt < 0 {
			continue
		}

		if !learned {
			prev := s.remote.Load()
			if prev == nil || !prev.IP.Equal(srcAddr.IP) || prev.Port != srcAddr.Port {
				s.remote.Store(srcAddr)
				s.logger.Info("symmetric rtp: learned remote address",
					"address", srcAddr.String())
			}
			learned = true
		}

		s.packetsIn.Add(1)

		if pt == PayloadTelephoneEvent {
			ev := ParseDTMFEvent(pkt[rtpHeaderSize:n])
			if ev == nil {
				continue
			}
			seq := uint16(pkt[2])<<8 | uint16(pkt[3])
			// A digit spans many packets; report it once, on the first
			// end-marked packet of the event.
			if ev.End && (!digitActive || seq != lastDigitSeq) {
				if digit := ev.Digit(); digit != 0 && s.onDigit != nil {
					s.onDigit(digit)
				}
				digitActive = true
				lastDigitSeq = seq
			}
			if !ev.End {
				digitActive = false
			}
			continue
		}

		if s.held.Load() {
			continue
		}
		if s.recorder != nil && n > rtpHeaderSize {
			s.recorder.Feed(pkt[rtpHeaderSize:n], pt)
		}
	}
}

// sendLoop emits one silence frame per packetization interval. Muted or
// held sessions skip frames but keep the loop (and its timing) running.
func (s *Session) sendLoop() {
	defer s.wg.Done()

	frame := make([]byte, rtpHeaderSize+frameSamples)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	first := true
	for range ticker.C {
		if s.stopped.Load() {
			return
		}
		// Timestamp advances even while muted so the stream stays
		// continuous for the far end's jitter buffer.
		s.timestamp += frameSamples
		if s.muted.Load() || s.held.Load() {
			continue
		}

		remote := s.remote.Load()
		if remote == nil {
			continue
		}

		pt := int(s.payloadType.Load())
		silence := SilencePCMU
		if pt == PayloadPCMA {
			silence = SilencePCMA
		}

		s.seq++
		buildRTPHeader(frame, pt, first, s.seq, s.timestamp, s.ssrc)
		for i := rtpHeaderSize; i < len(frame); i++ {
			frame[i] = silence
		}
		first = false

		if _, err := s.conn.WriteToUDP(frame, remote); err != nil {
			if s.stopped.Load() {
				return
			}
			s.logger.Debug("rtp write error", "error", err)
			continue
		}
		s.packetsOut.Add(1)
	}
}
