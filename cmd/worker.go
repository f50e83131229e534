package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/pdf-qa/pkg/taskqueue"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume document processing tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Queue.Enable {
				return errors.New("task queue is disabled, set queue.enable to true")
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			worker := taskqueue.NewRedisWorker(a.queue)
			worker.RegisterHandler(taskqueue.TaskProcessDocument, taskqueue.NewDocumentHandler(a.documents, logger))
			if err := worker.Start(); err != nil {
				return err
			}
			logger.WithField("concurrency", cfg.Queue.Concurrency).Info("Worker started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info("Stopping worker...")
			worker.Stop()
			return nil
		},
	}
}
