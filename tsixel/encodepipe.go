package tsixel

import (
	"bytes"
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/mattn/go-sixel"
)

// EncodeJob describes a SIXEL encoding job. The image is scaled to Size, if
// needed, and encoded. Done is called from a worker goroutine.
type EncodeJob struct {
	Done func(EncodeJob, []byte)

	Src  image.Image
	Size image.Point

	Filter imaging.ResampleFilter
	Dither bool
	Colors int
}

// EncodePipeline encodes images into SIXEL asynchronously over a bounded
// number of workers. Jobs are distributed in FIFO order.
type EncodePipeline struct {
	queue   []*EncodeJob
	pool    *encoderPool
	workers int

	// maxWorkers is the maximum number of workers to spawn.
	maxWorkers int

	// channels
	dieCh     chan struct{} // worker death signals
	jobCh     chan *EncodeJob
	distribCh chan *EncodeJob

	// clean up bits
	sctx context.Context
	stop context.CancelFunc
	done sync.WaitGroup
}

// NewEncodePipeline creates a new encode pipeline. Once the context is
// canceled, the pipeline stops. If maxWorkers is 0, GOMAXPROCS is used.
func NewEncodePipeline(ctx context.Context, maxWorkers int) *EncodePipeline {
	ctx, cancel := context.WithCancel(ctx)

	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(-1)
	}

	return &EncodePipeline{
		maxWorkers: maxWorkers,

		dieCh:     make(chan struct{}),
		jobCh:     make(chan *EncodeJob),
		distribCh: make(chan *EncodeJob),

		pool: newEncoderPool(),
		sctx: ctx,
		stop: cancel,
	}
}

// Start starts the pipeline. It does nothing if the pipeline is already
// stopped.
func (pipeline *EncodePipeline) Start() {
	select {
	case <-pipeline.sctx.Done():
		return
	default:
		pipeline.done.Add(1)
		go pipeline.start()
	}
}

// Stop stops the pipeline. It does nothing if the pipeline is already stopped.
// Jobs still queued are dropped.
func (pipeline *EncodePipeline) Stop() {
	pipeline.stop()
	pipeline.done.Wait()
}

func (pipeline *EncodePipeline) start() {
	defer pipeline.done.Done()

	var distributeJob *EncodeJob
	var distributeCh chan *EncodeJob

	for {
		select {
		case <-pipeline.sctx.Done():
			return

		case <-pipeline.dieCh:
			pipeline.workers--
			if pipeline.workers < 0 {
				panic("negative pipeline.workers")
			}

		case job := <-pipeline.jobCh:
			distributeCh = pipeline.distribCh

			// Append into an unbounded queue if we already have a job.
			// Otherwise, use it immediately.
			if distributeJob != nil {
				pipeline.queue = append(pipeline.queue, job)
			} else {
				distributeJob = job
			}

			if pipeline.workers < pipeline.maxWorkers {
				pipeline.workers++

				pipeline.done.Add(1)
				go func() {
					defer pipeline.done.Done()
					encodeWorker(pipeline.sctx, worker{
						pool:    pipeline.pool,
						distrib: pipeline.distribCh,
						die:     pipeline.dieCh,
					})
				}()
			}

		case distributeCh <- distributeJob:
			distributeJob = nil

			// Stop sending jobs if we're out of them.
			if len(pipeline.queue) == 0 {
				distributeCh = nil
				continue
			}

			// Rotate to the next job in FIFO order.
			distributeJob = pipeline.queue[0]

			copy(pipeline.queue, pipeline.queue[1:])
			pipeline.queue[len(pipeline.queue)-1] = nil
			pipeline.queue = pipeline.queue[:len(pipeline.queue)-1]
		}
	}
}

// QueueJob queues an encoding job. The job is dropped if the pipeline is
// stopped.
func (pipeline *EncodePipeline) QueueJob(job EncodeJob) {
	select {
	case <-pipeline.sctx.Done():
		// failed
	case pipeline.jobCh <- &job:
		// succeeded
	}
}

type worker struct {
	pool *encoderPool

	distrib chan *EncodeJob
	die     chan struct{}
}

func encodeWorker(ctx context.Context, w worker) {
EventLoop:
	for {
		select {
		case <-ctx.Done():
			return

		case job := <-w.distrib:
			job.Done(*job, w.pool.encode(job))

		default:
			break EventLoop
		}
	}

	// signal the worker's death and bail
	select {
	case <-ctx.Done(): // beware of expiry
	case w.die <- struct{}{}:
	}
}

type encoderPool sync.Pool

type pooledEncoder struct {
	*sixel.Encoder
	buf *bytes.Buffer
}

func (enc pooledEncoder) Bytes() []byte {
	return append([]byte(nil), enc.buf.Bytes()...)
}

func newEncoderPool() *encoderPool {
	return (*encoderPool)(&sync.Pool{
		New: func() interface{} {
			buf := bytes.Buffer{}
			buf.Grow(SIXELBufferSize)

			return pooledEncoder{
				buf:     &buf,
				Encoder: sixel.NewEncoder(&buf),
			}
		},
	})
}

// encode scales and encodes the job's image with a pooled encoder. The
// returned bytes are owned by the caller. Nil is returned if encoding failed.
func (encp *encoderPool) encode(job *EncodeJob) []byte {
	var img image.Image = job.Src
	if job.Src.Bounds().Size() != job.Size {
		img = imaging.Resize(job.Src, job.Size.X, job.Size.Y, job.Filter)
	}

	enc := encp.take()
	defer encp.put(enc)

	enc.Dither = job.Dither
	enc.Colors = job.Colors
	if enc.Colors < 2 || enc.Colors > 255 {
		enc.Colors = 255
	}

	if err := enc.Encode(img); err != nil {
		return nil
	}

	return enc.Bytes()
}

func (encp *encoderPool) take() pooledEncoder {
	return (*sync.Pool)(encp).Get().(pooledEncoder)
}

func (encp *encoderPool) put(enc pooledEncoder) {
	enc.buf.Reset()
	(*sync.Pool)(encp).Put(enc)
}
