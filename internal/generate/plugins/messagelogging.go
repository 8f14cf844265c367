package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/generate"
)

// CloudLoggingConfig sends the message to Cloud Logging.
type CloudLoggingConfig struct {
	LogName            string            `json:"logName"`
	Message            string            `json:"message"`
	MessageContentType string            `json:"messageContentType"`
	Labels             map[string]string `json:"labels"`
	ResourceType       string            `json:"resourceType"`
}

// SyslogConfig sends the message to a syslog server.
type SyslogConfig struct {
	Message       string `json:"message"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Protocol      string `json:"protocol"`
	FormatMessage *bool  `json:"formatMessage"`
	DateFormat    string `json:"dateFormat"`
}

// MessageLoggingConfig is the step payload of a MessageLogging step.
type MessageLoggingConfig struct {
	LogLevel     string              `json:"logLevel"`
	CloudLogging *CloudLoggingConfig `json:"cloudLoggingConfig"`
	Syslog       *SyslogConfig       `json:"syslogConfig"`
}

var messageLoggingSnippet = snippets.MustRegister("message-logging", `
<MessageLogging continueOnError="false" enabled="true" name="{{.Policy}}">
  <DisplayName>{{.Policy}}</DisplayName>
  {{- with .CloudLogging}}
  <CloudLogging>
    <LogName>{{xml .LogName}}</LogName>
    <Message contentType="{{.MessageContentType | default "application/json" | xml}}">{{xml .Message}}</Message>
    {{- with .Labels}}
    {{- $labels := .}}
    <Labels>
      {{- range keys .}}
      <Label>
        <Key>{{xml .}}</Key>
        <Value>{{xml (index $labels .)}}</Value>
      </Label>
      {{- end}}
    </Labels>
    {{- end}}
    {{- with .ResourceType}}
    <ResourceType>{{xml .}}</ResourceType>
    {{- end}}
  </CloudLogging>
  {{- end}}
  {{- with .Syslog}}
  <Syslog>
    <Message>{{xml .Message}}</Message>
    <Host>{{xml .Host}}</Host>
    <Port>{{.Port}}</Port>
    <Protocol>{{.Protocol | default "TCP" | xml}}</Protocol>
    <FormatMessage>{{if .FormatMessage}}{{.FormatMessage}}{{else}}true{{end}}</FormatMessage>
    <DateFormat>{{.DateFormat | default "yyMMdd-HH:mm:ss.SSS" | xml}}</DateFormat>
  </Syslog>
  {{- end}}
  <logLevel>{{.LogLevel | default "ALERT" | xml}}</logLevel>
</MessageLogging>`)

// MessageLogging renders ML-<name> logging to Cloud Logging or syslog.
type MessageLogging struct{}

func (MessageLogging) ID() string { return "message-logging" }

func (p MessageLogging) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	var config MessageLoggingConfig
	if err := step.Decode(&config); err != nil {
		return nil, fmt.Errorf("invalid MessageLogging step %s: %w", step.Name, err)
	}
	policy := "ML-" + step.Name
	contents, err := messageLoggingSnippet.RenderXML(struct {
		MessageLoggingConfig
		Policy string
	}{config, policy})
	if err != nil {
		return nil, err
	}
	res := generate.NewResult(p.ID())
	res.Add(policyPath(policy), contents, policy, step.FlowRunPoints...)
	return res, nil
}
