// Command tfhe-worker evaluates gate jobs popped from a Redis queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/cmdutil"
	"github.com/luxfi/tfhe/internal/queue"
	"github.com/luxfi/tfhe/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		numWorkers  = flag.Int("workers", 4, "number of worker goroutines")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/tmp/tfhe-storage", "ciphertext storage path")
		keyPath     = flag.String("server-key", "server.key", "server key written by tfhe-keygen")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
		backend     cmdutil.Backend
	)
	backend.Register(flag.CommandLine)
	flag.Parse()

	// The accelerator holds one key and runs one batch at a time.
	if backend.Hardware() && *numWorkers != 1 {
		log.Printf("Accelerator mode: using 1 worker instead of %d", *numWorkers)
		*numWorkers = 1
	}

	log.Printf("TFHE Worker starting...")
	log.Printf("  Workers: %d", *numWorkers)
	log.Printf("  Redis: %s", *redisAddr)
	log.Printf("  Storage: %s", *storagePath)
	log.Printf("  Metrics: %s", *metricsAddr)

	sk := new(tfhe.ServerKey)
	if err := cmdutil.ReadKey(*keyPath, sk); err != nil {
		return fmt.Errorf("load server key: %w", err)
	}
	log.Printf("  Parameters: %s", sk.Parameters())

	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr: *redisAddr,
		DB:   *redisDB,
	}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	pool := &WorkerPool{
		numWorkers: *numWorkers,
		queue:      q,
		storage:    store,
		key:        sk,
		backend:    backend,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP tfhe_jobs_total Total gate jobs\n")
		fmt.Fprintf(w, "# TYPE tfhe_jobs_total counter\n")
		fmt.Fprintf(w, "tfhe_jobs_total{status=\"success\"} %d\n", pool.successCount.Load())
		fmt.Fprintf(w, "tfhe_jobs_total{status=\"failure\"} %d\n", pool.failureCount.Load())
		fmt.Fprintf(w, "# HELP tfhe_gates_total Total gates evaluated\n")
		fmt.Fprintf(w, "# TYPE tfhe_gates_total counter\n")
		fmt.Fprintf(w, "tfhe_gates_total %d\n", pool.gateCount.Load())
	})

	server := &http.Server{
		Addr:    *metricsAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server starting on %s", *metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	if err := pool.Stop(); err != nil {
		log.Printf("Worker pool shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// WorkerPool runs workers that each own one Engine.
type WorkerPool struct {
	numWorkers   int
	queue        queue.Queue
	storage      storage.Storage
	key          *tfhe.ServerKey
	backend      cmdutil.Backend
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
	gateCount    atomic.Int64
}

// Start builds the engines and starts the workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	log.Printf("Starting %d workers", p.numWorkers)

	for i := 0; i < p.numWorkers; i++ {
		e := p.backend.NewEngine(p.key)
		p.wg.Add(1)
		go p.worker(ctx, i, e)
	}
	return nil
}

// Stop gracefully stops the worker pool.
func (p *WorkerPool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	log.Println("Stopping worker pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool stopped")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	p.running.Store(false)
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int, e *tfhe.Engine) {
	defer p.wg.Done()
	defer e.Close()

	log.Printf("Worker %d started (hardware %v, packing %d)", id, e.HardwareEnabled(), e.PackingFactor())

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}

		p.processJob(ctx, id, e, job)
	}
}

func (p *WorkerPool) fail(ctx context.Context, job *queue.Job, format string, args ...any) {
	job.Status = queue.StatusFailed
	job.Error = fmt.Sprintf(format, args...)
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("failed to update job %s: %v", job.ID, err)
	}
	p.failureCount.Add(1)
}

func (p *WorkerPool) load(ctx context.Context, ids []string) ([]*tfhe.Ciphertext, error) {
	handles := make([]storage.Handle, len(ids))
	for i, id := range ids {
		handles[i] = storage.Handle(id)
	}
	return storage.LoadCiphertexts(ctx, p.storage, handles)
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, e *tfhe.Engine, job *queue.Job) {
	log.Printf("Worker %d: processing job %s (%s x%d)", workerID, job.ID, job.Gate, len(job.Lefts))

	op, err := job.Op()
	if err != nil {
		p.fail(ctx, job, "%v", err)
		return
	}

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	var operands [3][]*tfhe.Ciphertext
	for i, ids := range [3][]string{job.Lefts, job.Rights, job.Elses} {
		if operands[i], err = p.load(ctx, ids); err != nil {
			p.fail(ctx, job, "load operands: %v", err)
			return
		}
	}

	var result []*tfhe.Ciphertext
	switch op {
	case tfhe.NOT:
		result, err = e.NotPacked(operands[0])
	case tfhe.MUX:
		result, err = e.MuxPacked(operands[0], operands[1], operands[2])
	default:
		result, err = e.GatePacked(op, operands[0], operands[1])
	}
	if err != nil {
		p.fail(ctx, job, "%s: %v", op, err)
		return
	}

	handles, err := storage.StoreCiphertexts(ctx, p.storage, result)
	if err != nil {
		p.fail(ctx, job, "store results: %v", err)
		return
	}

	job.Status = queue.StatusCompleted
	job.Results = make([]string, len(handles))
	for i, h := range handles {
		job.Results[i] = string(h)
	}
	job.Backend = "software"
	if e.HardwareEnabled() {
		job.Backend = "hardware"
	}
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job result: %v", workerID, err)
	}

	p.successCount.Add(1)
	p.gateCount.Add(int64(len(result)))
	log.Printf("Worker %d: job %s completed", workerID, job.ID)
}
