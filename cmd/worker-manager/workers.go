package main

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gritsync/internal/cache"
	awsclients "gritsync/internal/common/aws"
	"gritsync/internal/common/camunda"
	"gritsync/internal/common/config"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/observability"
	"gritsync/internal/common/payments"
	"gritsync/internal/common/pdf"
	"gritsync/internal/common/secrets"
	"gritsync/internal/feed"
	"gritsync/internal/search"
	"gritsync/internal/store"
	"gritsync/internal/timeline"
	getprocessingaccount "gritsync/internal/workers/accounts/get-processing-account"
	saveprocessingaccount "gritsync/internal/workers/accounts/save-processing-account"
	sendnotification "gritsync/internal/workers/application/send-notification"
	updateapplicationstatus "gritsync/internal/workers/application/update-application-status"
	searchapplications "gritsync/internal/workers/data-access/search-applications"
	generatecoverletter "gritsync/internal/workers/documents/generate-cover-letter"
	issuedocumenturl "gritsync/internal/workers/documents/issue-document-url"
	uploaddocument "gritsync/internal/workers/documents/upload-document"
	completepayment "gritsync/internal/workers/payments/complete-payment"
	createpayment "gritsync/internal/workers/payments/create-payment"
	generatereceipt "gritsync/internal/workers/payments/generate-receipt"
	evaluateprogress "gritsync/internal/workers/progress/evaluate-progress"
	updatetimelinestep "gritsync/internal/workers/timeline/update-timeline-step"
)

type workerDeps struct {
	cfg       *config.Config
	log       logger.Logger
	zapLog    *zap.Logger
	obs       *observability.Observability
	store     *store.Store
	publisher *feed.Publisher
	es        *elasticsearch.Client
	redis     *redis.Client
	s3        *awsclients.S3Client
	ses       *awsclients.SESClient
	sns       *awsclients.SNSClient
	payments  *payments.Client
	sealer    *secrets.Sealer
}

// handlerTimeout keeps a handler's own deadline inside the job lease Zeebe
// grants the worker.
func handlerTimeout(cfg *config.Config, taskType string, def time.Duration) time.Duration {
	lease := config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
	if lease > 0 && lease < def {
		return lease
	}
	return def
}

func registerWorkers(client zbc.Client, d *workerDeps) []worker.JobWorker {
	cfg := d.cfg
	var started []worker.JobWorker
	start := func(taskType string, h camunda.HandlerFunc) {
		if jw := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), h, d.zapLog); jw != nil {
			started = append(started, jw)
		}
	}

	mutator := timeline.NewMutator(d.store, d.publisher, d.obs, d.log)
	progressCache := cache.NewProgressCache(d.redis, time.Duration(cfg.Progress.CacheTTL)*time.Second)
	searchClient := search.NewClient(d.es, cfg.Database.Elasticsearch.ProgressIndex)
	renderer := pdf.NewRenderer()
	urlTTL := time.Duration(cfg.Storage.S3.SignedURLTTL) * time.Second

	// --- Timeline and progress ---
	{
		c := updatetimelinestep.LoadConfig()
		c.Timeout = handlerTimeout(cfg, updatetimelinestep.TaskType, c.Timeout)
		start(updatetimelinestep.TaskType, updatetimelinestep.NewHandler(c, mutator, progressCache, d.log).Handle)
	}
	{
		c := evaluateprogress.DefaultConfig()
		c.Timeout = handlerTimeout(cfg, evaluateprogress.TaskType, c.Timeout)
		c.CacheTTL = time.Duration(cfg.Progress.CacheTTL) * time.Second
		start(evaluateprogress.TaskType, evaluateprogress.NewHandler(c, d.store, progressCache, searchClient, d.log).Handle)
	}

	// --- Application ---
	{
		c := updateapplicationstatus.LoadConfig()
		c.Timeout = handlerTimeout(cfg, updateapplicationstatus.TaskType, c.Timeout)
		start(updateapplicationstatus.TaskType, updateapplicationstatus.NewHandler(c, d.store, d.publisher, progressCache, d.log).Handle)
	}
	{
		c := sendnotification.FromNotificationConfig(cfg.Notifications)
		c.Timeout = handlerTimeout(cfg, sendnotification.TaskType, c.Timeout)
		h, err := sendnotification.NewHandler(c, d.store, d.ses, d.sns, d.log)
		if err != nil {
			d.zapLog.Error("send-notification worker not started", zap.Error(err))
		} else {
			start(sendnotification.TaskType, h.Handle)
		}
	}
	{
		c := searchapplications.LoadConfig()
		c.Timeout = handlerTimeout(cfg, searchapplications.TaskType, c.Timeout)
		start(searchapplications.TaskType, searchapplications.NewHandler(c, searchClient, d.log).Handle)
	}

	// --- Payments ---
	{
		c := createpayment.DefaultConfig()
		c.Timeout = handlerTimeout(cfg, createpayment.TaskType, c.Timeout)
		if cfg.Payments.Currency != "" {
			c.Currency = cfg.Payments.Currency
		}
		for t, fee := range cfg.Payments.Fees {
			c.Fees[t] = fee
		}
		if err := c.Validate(); err != nil {
			d.zapLog.Error("create-payment worker not started", zap.Error(err))
		} else {
			start(createpayment.TaskType, createpayment.NewHandler(c, d.store, d.payments, d.publisher, d.log).Handle)
		}
	}
	{
		c := completepayment.LoadConfig()
		c.Timeout = handlerTimeout(cfg, completepayment.TaskType, c.Timeout)
		start(completepayment.TaskType, completepayment.NewHandler(c, d.store, d.payments, mutator, d.publisher, progressCache, d.log).Handle)
	}
	{
		c := generatereceipt.LoadConfig()
		c.Timeout = handlerTimeout(cfg, generatereceipt.TaskType, c.Timeout)
		if urlTTL > 0 {
			c.URLTTL = urlTTL
		}
		start(generatereceipt.TaskType, generatereceipt.NewHandler(c, d.store, d.s3, renderer, d.log).Handle)
	}

	// --- Documents ---
	{
		c := uploaddocument.DefaultConfig()
		c.Timeout = handlerTimeout(cfg, uploaddocument.TaskType, c.Timeout)
		if cfg.Storage.S3.MaxUploadBytes > 0 {
			c.MaxBytes = cfg.Storage.S3.MaxUploadBytes
		}
		start(uploaddocument.TaskType, uploaddocument.NewHandler(c, d.store, d.s3, mutator, d.publisher, progressCache, d.log).Handle)
	}
	{
		c := issuedocumenturl.LoadConfig()
		c.Timeout = handlerTimeout(cfg, issuedocumenturl.TaskType, c.Timeout)
		if urlTTL > 0 && urlTTL <= c.MaxTTL {
			c.DefaultTTL = urlTTL
		}
		start(issuedocumenturl.TaskType, issuedocumenturl.NewHandler(c, d.store, d.s3, d.log).Handle)
	}
	{
		c := generatecoverletter.LoadConfig()
		c.Timeout = handlerTimeout(cfg, generatecoverletter.TaskType, c.Timeout)
		if urlTTL > 0 {
			c.URLTTL = urlTTL
		}
		start(generatecoverletter.TaskType, generatecoverletter.NewHandler(c, d.store, d.s3, renderer, d.log).Handle)
	}

	// --- Processing accounts ---
	if d.sealer != nil {
		{
			c := saveprocessingaccount.LoadConfig()
			c.Timeout = handlerTimeout(cfg, saveprocessingaccount.TaskType, c.Timeout)
			start(saveprocessingaccount.TaskType, saveprocessingaccount.NewHandler(c, d.store, d.sealer, mutator, d.publisher, progressCache, d.log).Handle)
		}
		{
			c := getprocessingaccount.LoadConfig()
			c.Timeout = handlerTimeout(cfg, getprocessingaccount.TaskType, c.Timeout)
			start(getprocessingaccount.TaskType, getprocessingaccount.NewHandler(c, d.store, d.sealer, d.log).Handle)
		}
	}

	return started
}
