package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/pdf-qa/api"
	"github.com/fyerfyer/pdf-qa/api/handler"
	"github.com/fyerfyer/pdf-qa/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port       int
		withWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			gin.SetMode(cfg.Server.Mode)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			// 同进程启动任务消费者
			var worker *taskqueue.RedisWorker
			if withWorker && a.queue != nil {
				worker = taskqueue.NewRedisWorker(a.queue)
				worker.RegisterHandler(taskqueue.TaskProcessDocument, taskqueue.NewDocumentHandler(a.documents, logger))
				if err := worker.Start(); err != nil {
					return err
				}
				defer worker.Stop()
			}

			router := api.SetupRouter(
				handler.NewDocumentHandler(a.documents),
				handler.NewQAHandler(a.qa),
				handler.NewPageHandler(a.storage),
			)
			srv := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Server is running on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}
			logger.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.WithError(err).Error("Server forced to shutdown")
			}

			// 等待后台处理中的文档结束
			done := make(chan struct{})
			go func() {
				a.documents.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("Background document processing did not finish before shutdown")
			}

			logger.Info("Server exited")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port, overrides server.port")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "also consume queued tasks in this process")
	return cmd
}
