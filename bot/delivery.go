package bot

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"clanrpg/events"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	deliveryQueueSize   = 256
	deliveryMaxAttempts = 5
	deliveryBaseBackoff = time.Second
	deliveryMaxBackoff  = 30 * time.Second
)

// delivery drains game notifications to the chat transport on its own
// goroutine, so a slow or rate-limited send never blocks the game loops.
type delivery struct {
	session  *discordgo.Session
	mediaDir string
	queue    chan events.NotificationEvent
	done     chan struct{}
}

func newDelivery(session *discordgo.Session, mediaDir string) *delivery {
	d := &delivery{
		session:  session,
		mediaDir: mediaDir,
		queue:    make(chan events.NotificationEvent, deliveryQueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue accepts a notification, dropping it when the queue is full.
// Notifications are advisory; game state is already persisted by the time
// they reach here.
func (d *delivery) enqueue(notif events.NotificationEvent) {
	select {
	case d.queue <- notif:
	default:
		log.WithField("channel", notif.ChatID).Warn("Notification queue full, dropping message")
	}
}

func (d *delivery) stop() {
	close(d.done)
}

func (d *delivery) run() {
	for {
		select {
		case notif := <-d.queue:
			d.send(notif)
		case <-d.done:
			return
		}
	}
}

// send posts one notification, retrying with capped exponential backoff on
// rate limits and transient failures. Permanent failures are logged and the
// notification is dropped.
func (d *delivery) send(notif events.NotificationEvent) {
	text := notif.Text
	if len(notif.MentionIDs) > 0 {
		mentions := make([]string, 0, len(notif.MentionIDs))
		for _, id := range notif.MentionIDs {
			mentions = append(mentions, Mention(id))
		}
		text = strings.Join(mentions, " ") + "\n" + text
	}

	backoff := deliveryBaseBackoff
	for attempt := 1; attempt <= deliveryMaxAttempts; attempt++ {
		err := d.post(notif.ChatID, text, notif.MediaID)
		if err == nil {
			return
		}
		if !isRateLimitError(err) || attempt == deliveryMaxAttempts {
			log.WithFields(log.Fields{
				"channel": notif.ChatID,
				"error":   err,
			}).Error("Giving up on notification delivery")
			return
		}

		log.Warnf("Hit rate limit, waiting %v before retry %d/%d", backoff, attempt, deliveryMaxAttempts-1)
		select {
		case <-time.After(backoff):
		case <-d.done:
			return
		}
		backoff *= 2
		if backoff > deliveryMaxBackoff {
			backoff = deliveryMaxBackoff
		}
	}
}

// isRateLimitError checks if an error is a rate limit error
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit")
}

func (d *delivery) post(chatID, text, mediaID string) error {
	if mediaID != "" && d.mediaDir != "" {
		if path := d.mediaPath(mediaID); path != "" {
			file, err := os.Open(path)
			if err == nil {
				defer file.Close()
				_, err = d.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
					Content: text,
					Files: []*discordgo.File{{
						Name:   filepath.Base(path),
						Reader: file,
					}},
				})
				return err
			}
			log.WithField("media", mediaID).Warn("Media file missing, sending text only")
		}
	}
	_, err := d.session.ChannelMessageSend(chatID, text)
	return err
}

// mediaPath resolves a catalog media id to a file under the media
// directory, refusing ids that escape it.
func (d *delivery) mediaPath(mediaID string) string {
	clean := filepath.Clean(mediaID)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return ""
	}
	return filepath.Join(d.mediaDir, clean)
}
