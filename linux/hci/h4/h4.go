package h4

import (
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

const (
	rxQueueSize   = 64
	readTimeoutMs = 1000
)

type h4 struct {
	sp  io.ReadWriteCloser
	rmu sync.Mutex
	wmu sync.Mutex

	frame   *frame
	rxQueue chan []byte

	done chan int
	cmu  sync.Mutex
	log  sco.Logger
}

// DefaultSerialOptions returns open options suitable for a H4 UART
// controller. The caller fills in PortName.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     true,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
}

// NewSerial opens the serial port and returns a ReadWriteCloser that
// yields one complete HCI packet per Read.
func NewSerial(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	// a blocking read would stall the rx loop on close
	opts.MinimumReadSize = 0
	if opts.InterCharacterTimeout == 0 {
		opts.InterCharacterTimeout = 100
	}

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}

	rx := make(chan []byte, rxQueueSize)
	h := &h4{
		sp:      sp,
		done:    make(chan int),
		rxQueue: rx,
		frame:   newFrame(rx),
		log:     sco.GetLogger().ChildLogger(map[string]interface{}{"pkg": "h4", "port": opts.PortName}),
	}

	go h.rxLoop()

	return h, nil
}

func (h *h4) Read(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.rmu.Lock()
	defer h.rmu.Unlock()

	var n int
	select {
	case t := <-h.rxQueue:
		if len(p) < len(t) {
			return 0, errors.New("buffer too small")
		}
		n = copy(p, t)

	case <-time.After(time.Millisecond * readTimeoutMs):
		return 0, nil

	case <-h.done:
		return 0, io.EOF
	}

	if !h.isOpen() {
		return 0, io.EOF
	}
	return n, nil
}

func (h *h4) Write(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.sp.Write(p)
	return n, errors.Wrap(err, "can't write h4")
}

func (h *h4) Close() error {
	h.cmu.Lock()
	defer h.cmu.Unlock()

	select {
	case <-h.done:
		return nil

	default:
		close(h.done)
		h.log.Debug("closing h4")
		err := h.sp.Close()
		return errors.Wrap(err, "can't close h4")
	}
}

func (h *h4) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.sp != nil
	}
}

func (h *h4) rxLoop() {
	tmp := make([]byte, 512)
	for {
		select {
		case <-h.done:
			return
		default:
		}

		n, err := h.sp.Read(tmp)
		if err != nil || n == 0 {
			continue
		}

		h.frame.Assemble(tmp[:n])
	}
}
