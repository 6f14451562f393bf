package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

// FeishuNotifier sends notifications to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a new Feishu notifier
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	// Priority: config file > environment variable
	if webhookURL != "" {
		logger.Info("Using Feishu webhook URL from config file")
	} else {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using Feishu webhook URL from environment variable")
		}
	}

	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured (check config file or FEISHU_WEBHOOK_URL env), Feishu notifications will be disabled")
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured
func (f *FeishuNotifier) Enabled() bool {
	return f != nil && f.webhookURL != ""
}

// NotifyScaleEvent sends a card for a committed scale action
func (f *FeishuNotifier) NotifyScaleEvent(ctx context.Context, event *interfaces.ScalingEvent) error {
	if !f.Enabled() {
		return nil
	}
	if err := f.send(ctx, buildScaleEventMessage(event)); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "Feishu notification sent for scaling event %s", event.EventID)
	return nil
}

// NotifyLoadTestFinished sends a card once a load test reached its terminal state
func (f *FeishuNotifier) NotifyLoadTestFinished(ctx context.Context, test *interfaces.LoadTest) error {
	if !f.Enabled() {
		return nil
	}
	if err := f.send(ctx, buildLoadTestMessage(test)); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "Feishu notification sent for load test %d", test.ID)
	return nil
}

func (f *FeishuNotifier) send(ctx context.Context, message map[string]interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}
	return nil
}

func buildScaleEventMessage(event *interfaces.ScalingEvent) map[string]interface{} {
	template, title := "blue", "Scaled Up"
	if event.Action == constants.ScaleActionDown {
		template, title = "turquoise", "Scaled Down"
	}

	return card(template, title, []interface{}{
		markdown(fmt.Sprintf("**Container**: %s\nPolicy #%d triggered on %s", event.ContainerID, event.PolicyID, event.TriggerMetric)),
		hr(),
		fields(
			fmt.Sprintf("**Replicas**\n%d -> %d", event.ReplicaCountBefore, event.ReplicaCountAfter),
			fmt.Sprintf("**Metric Value**\n%.2f%%", event.MetricValue),
		),
		markdown(fmt.Sprintf("**Time**: %s", event.CreatedAt.Format(timeLayout))),
	})
}

func buildLoadTestMessage(test *interfaces.LoadTest) map[string]interface{} {
	template := "green"
	switch test.Status {
	case constants.LoadTestStatusFailed:
		template = "red"
	case constants.LoadTestStatusCancelled:
		template = "grey"
	}

	avg := "-"
	if test.AvgResponseTimeMs != nil {
		avg = fmt.Sprintf("%.1f ms", *test.AvgResponseTimeMs)
	}

	elements := []interface{}{
		markdown(fmt.Sprintf("**Container**: %s\n**Target**: %s", test.ContainerID, test.TargetURL)),
		hr(),
		fields(
			fmt.Sprintf("**Sent**\n%d / %d", test.RequestsSent, test.TotalRequests),
			fmt.Sprintf("**Completed / Failed**\n%d / %d", test.RequestsCompleted, test.RequestsFailed),
		),
		fields(
			fmt.Sprintf("**Avg Response**\n%s", avg),
			fmt.Sprintf("**Concurrency**\n%d", test.Concurrency),
		),
	}
	if test.ErrorMessage != "" {
		elements = append(elements, markdown(fmt.Sprintf("**Error**: %s", test.ErrorMessage)))
	}
	if test.CompletedAt != nil {
		elements = append(elements, markdown(fmt.Sprintf("**Finished**: %s", test.CompletedAt.Format(timeLayout))))
	}

	return card(template, fmt.Sprintf("Load Test #%d %s", test.ID, test.Status), elements)
}

func card(template, title string, elements []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": title,
					"tag":     "plain_text",
				},
			},
			"elements": elements,
		},
	}
}

func markdown(content string) map[string]interface{} {
	return map[string]interface{}{
		"tag": "div",
		"text": map[string]interface{}{
			"content": content,
			"tag":     "lark_md",
		},
	}
}

func fields(left, right string) map[string]interface{} {
	return map[string]interface{}{
		"tag": "div",
		"fields": []interface{}{
			map[string]interface{}{
				"is_short": true,
				"text":     map[string]interface{}{"content": left, "tag": "lark_md"},
			},
			map[string]interface{}{
				"is_short": true,
				"text":     map[string]interface{}{"content": right, "tag": "lark_md"},
			},
		},
	}
}

func hr() map[string]interface{} {
	return map[string]interface{}{"tag": "hr"}
}
