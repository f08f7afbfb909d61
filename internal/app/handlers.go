package app

import (
	"context"
	"fmt"
	"time"

	"orqon-dispatch/internal/collaborators/alerts"
	"orqon-dispatch/internal/collaborators/calendar"
	"orqon-dispatch/internal/collaborators/email"
	"orqon-dispatch/internal/collaborators/knowledge"
	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/collaborators/quotes"
	"orqon-dispatch/internal/common/aws"
	"orqon-dispatch/internal/common/config"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers/compliance"
	"orqon-dispatch/internal/handlers/conversational"
	"orqon-dispatch/internal/handlers/emailsend"
	"orqon-dispatch/internal/handlers/quote"
	"orqon-dispatch/internal/handlers/records"
	"orqon-dispatch/internal/handlers/scheduling"
	"orqon-dispatch/internal/handlers/tradelog"
	"orqon-dispatch/internal/intent"
)

// collaborators are the external services handed to the handlers. llm and
// searcher are nil when not configured.
type collaborators struct {
	llm      llm.Provider
	calendar calendar.Service
	email    email.Service
	alerts   alerts.Notifier
	quotes   quotes.Service
	searcher knowledge.Searcher
	location *time.Location
}

func (a *App) buildCollaborators(ctx context.Context) (*collaborators, error) {
	cfg := a.Config
	apis := cfg.APIs
	c := &collaborators{}

	loc, err := time.LoadLocation(apis.Calendar.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("apis.calendar.time_zone: %w", err)
	}
	c.location = loc

	if apis.OpenAI.APIKey != "" {
		c.llm = llm.NewOpenAIProvider(llm.Options{
			APIKey:      apis.OpenAI.APIKey,
			BaseURL:     apis.OpenAI.BaseURL,
			Model:       apis.OpenAI.Model,
			MaxTokens:   apis.OpenAI.MaxTokens,
			Temperature: apis.OpenAI.Temperature,
			Timeout:     config.GetDuration(apis.OpenAI.Timeout),
		})
	} else {
		a.Logger.Warn("no OpenAI key, handlers use canned text and trade logs are refused", nil)
	}

	if apis.Calendar.Token != "" {
		c.calendar = calendar.NewGoogleService(apis.Calendar.BaseURL, apis.Calendar.CalendarID,
			apis.Calendar.Token, apis.Calendar.TimeZone, config.GetDuration(apis.Calendar.Timeout))
	} else {
		a.Logger.Warn("no calendar token, events are kept in memory", nil)
		c.calendar = calendar.NewMemoryService()
	}

	awsCfg := cfg.Integrations.AWS
	if awsCfg.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, awsCfg.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		c.email = email.NewSESService(ses, awsCfg.SES.FromEmail, a.Logger.With(map[string]interface{}{"component": "email"}))
	} else {
		a.Logger.Warn("SES disabled, outgoing email is only recorded", nil)
		c.email = &email.Outbox{}
	}
	if awsCfg.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, awsCfg.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		c.alerts = alerts.NewSNSNotifier(sns, awsCfg.SNS.TopicARN, a.Logger.With(map[string]interface{}{"component": "alerts"}))
	} else {
		c.alerts = &alerts.Recorder{}
	}

	if apis.Finnhub.APIKey == "" {
		a.Logger.Warn("no Finnhub key, quote requests will fail", nil)
	}
	c.quotes = quotes.NewFinnhubClient(apis.Finnhub.BaseURL, apis.Finnhub.APIKey, config.GetDuration(apis.Finnhub.Timeout))

	if a.knowledge != nil {
		c.searcher = a.knowledge
	}
	return c, nil
}

// validator is implemented by every handler Config.
type validator interface {
	Validate() error
}

// buildHandlers constructs the enabled handlers with their configured ranks.
// The conversational handler is always the default, even when it is not
// consulted in rank order.
func (a *App) buildHandlers(c *collaborators) (dispatch.Handler, []dispatch.Handler, error) {
	cfg := a.Config
	var out []dispatch.Handler

	add := func(name string, conf validator, build func() dispatch.Handler) error {
		if !config.IsHandlerEnabled(cfg, name) {
			a.Logger.Info("handler disabled", map[string]interface{}{"handler": name})
			return nil
		}
		if err := conf.Validate(); err != nil {
			return fmt.Errorf("handler %s: %w", name, err)
		}
		out = append(out, build())
		return nil
	}
	rank := func(name string) int { return config.GetHandlerConfig(cfg, name).Rank }
	logFor := func(name string) logger.Logger {
		return a.Logger.With(map[string]interface{}{"handler": name})
	}

	convCfg := conversational.DefaultConfig()
	convCfg.Rank = rank(conversational.Name)
	convCfg.Location = c.location
	if err := convCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("handler %s: %w", conversational.Name, err)
	}
	conv := conversational.NewHandler(convCfg, logFor(conversational.Name))
	if config.IsHandlerEnabled(cfg, conversational.Name) {
		out = append(out, conv)
	}

	tlCfg := tradelog.DefaultConfig()
	tlCfg.Rank = rank(tradelog.Name)
	err := add(tradelog.Name, tlCfg, func() dispatch.Handler {
		return tradelog.NewHandler(tlCfg, c.llm, reindexingStore{app: a}, c.alerts, logFor(tradelog.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	schedCfg := scheduling.DefaultConfig()
	schedCfg.Rank = rank(scheduling.Name)
	schedCfg.Location = c.location
	err = add(scheduling.Name, schedCfg, func() dispatch.Handler {
		return scheduling.NewHandler(schedCfg, c.calendar, c.email, c.llm, logFor(scheduling.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	mailCfg := emailsend.DefaultConfig()
	mailCfg.Rank = rank(emailsend.Name)
	err = add(emailsend.Name, mailCfg, func() dispatch.Handler {
		return emailsend.NewHandler(mailCfg, c.email, c.llm, logFor(emailsend.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	recCfg := records.DefaultConfig()
	recCfg.Rank = rank(records.Name)
	err = add(records.Name, recCfg, func() dispatch.Handler {
		return records.NewHandler(recCfg, logFor(records.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	quoteCfg := quote.DefaultConfig()
	quoteCfg.Rank = rank(quote.Name)
	err = add(quote.Name, quoteCfg, func() dispatch.Handler {
		return quote.NewHandler(quoteCfg, c.quotes, logFor(quote.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	compCfg := compliance.DefaultConfig()
	compCfg.Rank = rank(compliance.Name)
	err = add(compliance.Name, compCfg, func() dispatch.Handler {
		return compliance.NewHandler(compCfg, c.searcher, c.llm, logFor(compliance.Name))
	})
	if err != nil {
		return nil, nil, err
	}

	return conv, out, nil
}

// buildClassifier returns the keyword classifier, backed by the
// text-generation classifier when enabled and available.
func (a *App) buildClassifier(provider llm.Provider) intent.Classifier {
	keyword := intent.NewKeywordClassifier()
	if !a.Config.Dispatch.LLMClassifier {
		return keyword
	}
	if provider == nil {
		a.Logger.Warn("llm classifier enabled without an OpenAI key, using keywords only", nil)
		return keyword
	}
	log := a.Logger.With(map[string]interface{}{"component": "classifier"})
	return &intent.Chain{
		Primary:  keyword,
		Fallback: intent.NewLLMClassifier(provider, log),
		Logger:   log,
	}
}
