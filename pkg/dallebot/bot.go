package dallebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// A Bot is a Telegram bot generating images via OpenAI's image API.
// Bots can most easily be created by passing a config to [GetBotFromConfig], but can also be created manually by populating a [Bot] struct.
// For a manually created bot to work, at least Token and OpenaiKey have to be populated.
type Bot struct {
	Token     string // The Telegram bot token
	OpenaiKey string // The OpenAI API key

	DeveloperChatID int64 // The chat to which errors and copies of all generations are sent, or 0 to disable

	RequestDelay time.Duration // The minimum delay between two generation requests of the same user
	DailyLimit   int           // The maximum amount of generations per user per calendar day

	ImageSize int // The edge length in pixels of generated images

	JournalDir string // The directory holding the request journal. Should point into the volume mounted by the deployment

	StatusPort int // The port on which the status server is served. Only read by callers, the bot itself does not serve HTTP

	MaxConcurrentGenerations uint // The max amount of generations that can run concurrently, or 0 for 1

	Log *logrus.Logger // The log to which information gets printed to

	telegram *telegramClient
	openai   *openaiClient

	journal *Journal

	generationSem *semaphore.Weighted

	// Serializes the limit checks with the journal record, so concurrent messages of the same user can't both pass the checks
	limitMu sync.Mutex

	mu             sync.Mutex
	awaitingPrompt map[promptKey]bool // Conversations whose next plain text message is used as the prompt
}

// A promptKey identifies a pending prompt request.
// It carries both the chat and the user, so in groups one member's pending request doesn't consume another member's message
type promptKey struct {
	chat int64
	user int64
}

const greeting = `Hi there! I’m DALL·E Bot.
Send me a prompt and I’ll send you an image generated by OpenAI’s DALL·E.
As the image generation is not for free there is a limit set to one request per %.0f seconds and %d images per day.
In order to achieve this, I'm storing your anonymised hashed user id together with the timestamp of your message.
To comply with OpenAI's moderation policy, I'm also storing the prompts and the generated images, again all fully anonymised.

If you find issues or have any questions, please contact dallebot@jakubwaller.eu
If you want to support the bot, you can buy him a coffee here https://ko-fi.com/jakubwaller
Feel free to also check out the code at: https://github.com/jakubwaller/dallebot`

// Run the bot. This opens the journal and starts polling for updates in the background until the passed context is cancelled.
// The returned [Journal] can be used to serve request statistics
func (b *Bot) Run(ctx context.Context) (*Journal, error) {
	// Init the logger
	if b.Log == nil {
		// Mute logger
		b.Log = logrus.New()
		b.Log.SetOutput(io.Discard)
	}

	if b.Token == "" {
		return nil, fmt.Errorf("no bot token configured")
	}
	if b.OpenaiKey == "" {
		return nil, fmt.Errorf("no openai api key configured")
	}

	// Init the generation semaphore
	if b.MaxConcurrentGenerations == 0 {
		b.MaxConcurrentGenerations = 1
	}
	b.generationSem = semaphore.NewWeighted(int64(b.MaxConcurrentGenerations))

	if b.telegram == nil {
		b.telegram = newTelegramClient(b.Token)
	}
	if b.openai == nil {
		b.openai = newOpenaiClient(b.OpenaiKey)
	}

	b.Log.Info("Opening request journal...")
	journal, err := OpenJournal(b.JournalDir)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open journal in %s", b.JournalDir), err)
	}
	b.journal = journal

	b.awaitingPrompt = make(map[promptKey]bool)

	go b.poll(ctx)

	return journal, nil
}

// poll long-polls Telegram for updates and dispatches every incoming message
func (b *Bot) poll(ctx context.Context) {
	b.Log.Info("Polling for updates...")

	var offset int64
	for ctx.Err() == nil {
		updates, err := b.telegram.getUpdates(ctx, offset, 30*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.Log.Warnf("Failed to get updates - %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, *update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg tgMessage) {
	if err := b.dispatch(ctx, msg); err != nil {
		b.reportError(ctx, err)
	}
}

// dispatch routes a message based on the command it carries and the chat's conversation state
func (b *Bot) dispatch(ctx context.Context, msg tgMessage) error {
	text := strings.TrimSpace(msg.Text)
	command, args := splitCommand(text)

	switch command {
	case "/start":
		b.setAwaitingPrompt(msg.Chat.ID, msg.From.ID, false)
		return b.telegram.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(greeting, b.RequestDelay.Seconds(), b.DailyLimit))
	case "/cancel":
		b.setAwaitingPrompt(msg.Chat.ID, msg.From.ID, false)
		return nil
	case "/generate":
		return b.handlePrompt(ctx, msg, args)
	case "":
		// A plain text message is only a prompt if the sender's previous /generate in this chat carried none
		if b.awaitsPrompt(msg.Chat.ID, msg.From.ID) {
			return b.handlePrompt(ctx, msg, text)
		}
		return nil
	default:
		// Unknown command
		return nil
	}
}

// splitCommand splits a message into its leading bot command and the remaining text.
// Messages without a leading command return an empty command
func splitCommand(text string) (command, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ = strings.Cut(text, " ")

	// Commands may be addressed as /command@BotName in groups
	command, _, _ = strings.Cut(command, "@")

	return command, strings.TrimSpace(args)
}

// handlePrompt enforces the rate limits and either asks for a prompt, if none was given, or generates an image.
// The limit checks and the journal record happen in one critical section, as messages are dispatched concurrently
// and two in-flight messages of the same user must not both pass the checks
func (b *Bot) handlePrompt(ctx context.Context, msg tgMessage, prompt string) error {
	chatID := msg.Chat.ID
	hashedUser := b.journal.HashUser(msg.From.ID)
	now := time.Now()

	b.limitMu.Lock()

	if last, ok := b.journal.LastRequest(hashedUser); ok {
		if wait := b.RequestDelay - now.Sub(last); wait > 0 {
			b.limitMu.Unlock()
			b.setAwaitingPrompt(chatID, msg.From.ID, false)
			return b.telegram.sendMessage(ctx, chatID, fmt.Sprintf(
				"Sorry, due to resource constraints, it's only allowed to send one request per %.0f seconds.\nPlease try again in %.0f seconds.",
				b.RequestDelay.Seconds(), wait.Seconds()))
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if b.journal.RequestsSince(hashedUser, today) >= b.DailyLimit {
		b.limitMu.Unlock()
		b.setAwaitingPrompt(chatID, msg.From.ID, false)
		return b.telegram.sendMessage(ctx, chatID, fmt.Sprintf(
			"Sorry, as the image generation is not for free, there is a limit of %d per day. Please try again tomorrow.",
			b.DailyLimit))
	}

	if prompt == "" {
		b.limitMu.Unlock()
		b.setAwaitingPrompt(chatID, msg.From.ID, true)
		return b.telegram.sendMessage(ctx, chatID, "K let's do this! What image should I generate?")
	}

	isGroup := strings.Contains(msg.Chat.Type, "group")

	// The journal entry is written before generating, so failed generations still count towards the limits
	if err := b.journal.Record(isGroup, now, prompt, b.ImageSize, hashedUser); err != nil {
		b.Log.Warnf("Failed to record request in journal - %v", err)
	}

	b.limitMu.Unlock()

	b.setAwaitingPrompt(chatID, msg.From.ID, false)
	return b.generate(ctx, msg, prompt, hashedUser, isGroup)
}

// generate moderates the prompt and sends the generated image to the chat and the developer
func (b *Bot) generate(ctx context.Context, msg tgMessage, prompt, hashedUser string, isGroup bool) error {
	if err := b.generationSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.generationSem.Release(1)

	if err := b.telegram.sendChatAction(ctx, msg.Chat.ID, "upload_photo"); err != nil {
		b.Log.Warnf("Failed to send chat action - %v", err)
	}

	b.Log.Infof("Generating image for prompt %q", prompt)

	flagged, err := b.openai.moderatePrompt(ctx, prompt)
	if err != nil {
		return b.relayApiError(ctx, msg.Chat.ID, prompt, err)
	}
	if flagged {
		b.Log.Infof("Prompt %q was flagged by moderation", prompt)
		if err := b.telegram.sendMessage(ctx, msg.Chat.ID, "This prompt doesn't comply with OpenAI's content policy."); err != nil {
			return err
		}
		b.notifyDeveloper(ctx, fmt.Sprintf("This prompt doesn't comply with OpenAI's content policy: %s.", prompt))
		return nil
	}

	imageURL, err := b.openai.generateImage(ctx, prompt, b.ImageSize, hashedUser)
	if err != nil {
		return b.relayApiError(ctx, msg.Chat.ID, prompt, err)
	}

	if err := b.telegram.sendPhoto(ctx, msg.Chat.ID, imageURL, prompt); err != nil {
		return err
	}

	if b.DeveloperChatID != 0 {
		scope := "single user: "
		if isGroup {
			scope = "group: "
		}
		if err := b.telegram.sendPhoto(ctx, b.DeveloperChatID, imageURL, scope+prompt); err != nil {
			b.Log.Warnf("Failed to send photo to developer chat - %v", err)
		}
	}

	return nil
}

// relayApiError forwards user facing OpenAI errors, such as rejected prompts or API rate limits, to the chat.
// All other errors are returned for the error handler
func (b *Bot) relayApiError(ctx context.Context, chatID int64, prompt string, err error) error {
	var apiErr *apiError
	if !errors.As(err, &apiErr) || !apiErr.userFacing() {
		return err
	}

	if err := b.telegram.sendMessage(ctx, chatID, apiErr.Message); err != nil {
		return err
	}
	b.notifyDeveloper(ctx, fmt.Sprintf("%s\n%s", prompt, apiErr.Message))
	return nil
}

// reportError logs the error and notifies the developer chat
func (b *Bot) reportError(ctx context.Context, err error) {
	b.Log.Errorf("Error while handling an update - %v", err)
	b.notifyDeveloper(ctx, fmt.Sprintf("An error occurred while handling an update:\n%v", err))
}

func (b *Bot) notifyDeveloper(ctx context.Context, text string) {
	if b.DeveloperChatID == 0 {
		return
	}
	if err := b.telegram.sendMessage(ctx, b.DeveloperChatID, text); err != nil {
		b.Log.Warnf("Failed to notify developer chat - %v", err)
	}
}

func (b *Bot) setAwaitingPrompt(chatID, userID int64, awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if awaiting {
		b.awaitingPrompt[promptKey{chat: chatID, user: userID}] = true
	} else {
		delete(b.awaitingPrompt, promptKey{chat: chatID, user: userID})
	}
}

func (b *Bot) awaitsPrompt(chatID, userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingPrompt[promptKey{chat: chatID, user: userID}]
}
