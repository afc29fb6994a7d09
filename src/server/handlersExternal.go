package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"photogallery/src/app"
	cfg "photogallery/src/configuration"
)

type (
	// ExternalHandler answers the chatbot, delegating open questions to the
	// ML host.
	ExternalHandler struct {
		mlHost  string
		message RequestPipeline
		log     logrus.FieldLogger
	}

	PostChatBody struct {
		Messages []app.ChatMessage `json:"messages"`
	}

	PostMlBody struct {
		Message  string            `json:"message"`
		Messages []app.ChatMessage `json:"messages"`
	}

	MlReplyBody struct {
		Reply   string `json:"reply"`
		Message string `json:"message"`
	}

	MlLabelsBody struct {
		Labels []string `json:"labels"`
	}

	// MLLabeler asks the ML host to label an image.
	MLLabeler struct {
		mlHost string
		labels RequestPipeline
	}
)

const fallbackReply = "I can help with albums, uploads, favorites and your profile. Try asking how to upload a photo."

type cannedReply struct {
	keywords []string
	reply    string
}

// First match wins.
var cannedReplies = []cannedReply{
	{[]string{"favorite", "favourite"}, "Your favorite photos are listed by `gallery favorites`. Toggle one with `gallery favorite <key>`."},
	{[]string{"create an album", "add an album", "new album"}, "Create an album with `gallery albums create <name>`."},
	{[]string{"albums"}, "List your albums with `gallery albums list` and filter photos with `gallery photos list --album <id>`."},
	{[]string{"upload", "add a photo"}, "Run `gallery upload <file>` and optionally add `--description`, `--location` and `--album`."},
	{[]string{"analysis", "analyze", "label", "artificial intelligence"}, "Every uploaded photo is analyzed and tagged with labels describing its content."},
	{[]string{"description"}, "Add a description when uploading so you can find the photo again with `gallery photos list --search`."},
	{[]string{"location", "place"}, "Add a place with `--location` when uploading, a city or GPS coordinates."},
	{[]string{"profile photo", "profile picture"}, "Change your profile photo with `gallery profile set <file>`."},
	{[]string{"delete a photo", "remove a photo"}, "Delete a photo with `gallery delete <key>`."},
	{[]string{"dark mode"}, "Switch themes with `gallery theme dark` or `gallery theme light`."},
	{[]string{"logout", "log out", "sign out"}, "Run `gallery logout` to sign out."},
}

func customReply(input string) (string, bool) {
	input = strings.ToLower(input)
	for _, c := range cannedReplies {
		for _, k := range c.keywords {
			if strings.Contains(input, k) {
				return c.reply, true
			}
		}
	}
	return "", false
}

func NewExternalHandler(config *cfg.Properties, log logrus.FieldLogger) *ExternalHandler {
	return &ExternalHandler{
		mlHost:  strings.TrimRight(config.MLServer.Host, "/"),
		message: newRequestPipeline(config.MLServer.Timeout, prepareJSONBody, decodeInto[MlReplyBody]),
		log:     log,
	}
}

func (e *ExternalHandler) Chatbot(c *gin.Context) {
	var requestBody PostChatBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || len(requestBody.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "error", "error": "no message provided"})
		return
	}
	last := requestBody.Messages[len(requestBody.Messages)-1].Text
	if reply, ok := customReply(last); ok {
		c.JSON(http.StatusOK, gin.H{"reply": reply})
		return
	}
	if e.mlHost == "" {
		c.JSON(http.StatusOK, gin.H{"reply": fallbackReply})
		return
	}
	result, err := e.message.Execute(c.Request.Context(), http.MethodPost,
		fmt.Sprintf("%s/message", e.mlHost),
		PostMlBody{Message: last, Messages: requestBody.Messages})
	if err != nil {
		e.log.WithError(err).Error("chatbot request to ML host")
		c.JSON(http.StatusBadGateway, gin.H{"message": "response error", "error": err.Error()})
		return
	}
	body := result.(MlReplyBody)
	reply := body.Reply
	if reply == "" {
		reply = body.Message
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// NewMLLabeler returns nil when no ML host is configured.
func NewMLLabeler(config *cfg.Properties) *MLLabeler {
	if config.MLServer.Host == "" {
		return nil
	}
	return &MLLabeler{
		mlHost: strings.TrimRight(config.MLServer.Host, "/"),
		labels: newRequestPipeline(config.MLServer.Timeout, prepareMultipartFile, decodeInto[MlLabelsBody]),
	}
}

func (m *MLLabeler) Labels(ctx context.Context, name string, data []byte) ([]string, error) {
	result, err := m.labels.Execute(ctx, http.MethodPost,
		fmt.Sprintf("%s/labels", m.mlHost),
		multipartParams{
			fields:    map[string]string{"name": name},
			fileField: "filedata",
			fileName:  name,
			data:      data,
		})
	if err != nil {
		return nil, errors.Wrap(err, "label image")
	}
	return result.(MlLabelsBody).Labels, nil
}
