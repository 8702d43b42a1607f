package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	mumcrypto "github.com/sornas/mum/pkg/crypto"
	"github.com/sornas/mum/pkg/protocol"
)

// VoiceClient manages the encrypted UDP voice channel. Payloads are
// encrypted on send and decrypted on receive, so everything past this point
// handles plain Opus frames.
type VoiceClient struct {
	conn    *net.UDPConn
	session uint32
	seqNum  atomic.Uint32

	cipherMu sync.RWMutex
	cipher   *mumcrypto.VoiceCipher

	// Incoming carries decrypted voice packets to the playback path.
	Incoming chan *protocol.VoicePacket

	closeOnce sync.Once
	done      chan struct{}
}

// DialVoice opens the UDP voice path with the session's negotiated cipher.
func DialVoice(serverAddr string, session uint32, cipher *mumcrypto.VoiceCipher) (*VoiceClient, error) {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, &ConnectionError{Addr: serverAddr, Err: err}
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, &ConnectionError{Addr: serverAddr, Err: err}
	}

	_ = conn.SetReadBuffer(512 * 1024)
	_ = conn.SetWriteBuffer(512 * 1024)

	return &VoiceClient{
		conn:     conn,
		session:  session,
		cipher:   cipher,
		Incoming: make(chan *protocol.VoicePacket, 100),
		done:     make(chan struct{}),
	}, nil
}

// Rekey swaps in a new cipher after the server re-runs crypt setup.
func (v *VoiceClient) Rekey(cipher *mumcrypto.VoiceCipher) {
	v.cipherMu.Lock()
	v.cipher = cipher
	v.cipherMu.Unlock()
}

func (v *VoiceClient) currentCipher() *mumcrypto.VoiceCipher {
	v.cipherMu.RLock()
	defer v.cipherMu.RUnlock()
	return v.cipher
}

// SendVoice encrypts and sends one Opus frame. Sequence numbers are
// monotonic for the lifetime of the voice connection; the AEAD nonce is
// derived from them, so they must never repeat under the same key.
func (v *VoiceClient) SendVoice(opusData []byte) error {
	seq := v.seqNum.Add(1)
	pkt := &protocol.VoicePacket{
		Session: v.session,
		SeqNum:  seq,
	}
	header := pkt.MarshalHeader()
	pkt.Payload = v.currentCipher().Encrypt(v.session, seq, header, opusData)

	if _, err := v.conn.Write(pkt.Marshal()); err != nil {
		return fmt.Errorf("client: send voice: %w", err)
	}
	metricVoiceSent.Inc()
	return nil
}

// StartReceiving reads, parses and decrypts incoming voice packets until the
// connection closes. Undecryptable or malformed datagrams are dropped; the
// internet sends those.
func (v *VoiceClient) StartReceiving() {
	go func() {
		buf := make([]byte, protocol.VoiceHeaderSize+protocol.MaxVoicePayload)
		for {
			n, err := v.conn.Read(buf)
			if err != nil {
				select {
				case <-v.done:
				default:
					slog.Debug("voice read error", "err", err)
				}
				return
			}

			pkt, err := protocol.UnmarshalVoicePacket(buf[:n])
			if err != nil {
				continue
			}

			opus, err := v.currentCipher().Decrypt(pkt.Session, pkt.SeqNum, pkt.MarshalHeader(), pkt.Payload)
			if err != nil {
				metricVoiceDecryptFail.Inc()
				slog.Debug("voice decrypt failed", "session", pkt.Session)
				continue
			}
			pkt.Payload = opus
			metricVoiceReceived.Inc()

			select {
			case v.Incoming <- pkt:
			default:
				// Drop packet if the decode path is behind (back-pressure)
			}
		}
	}()
}

// Close closes the voice connection.
func (v *VoiceClient) Close() error {
	var err error
	v.closeOnce.Do(func() {
		close(v.done)
		err = v.conn.Close()
	})
	return err
}
