package telegram

import (
	"context"
	"errors"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/config"
	"github.com/Sovannasam/Checher/internal/model"
	"github.com/Sovannasam/Checher/internal/service"
)

// welcomeText /start 欢迎与用法说明
const welcomeText = "Welcome to the Time Tracker Bot!\n\n" +
	"You can use the following commands:\n" +
	"- `check in`\n" +
	"- `check out`\n" +
	"- `wc`\n" +
	"- `smoke`\n" +
	"- `eat`\n\n" +
	"When you are back from a break, please reply with `1`, `+1`, `back`, `finish`, or `done`."

// signalKind 自由文本信号分类结果
type signalKind int

const (
	sigNone signalKind = iota
	sigCheckIn
	sigCheckOut
	sigWC
	sigSmoke
	sigEat
	sigBack
)

// 与既有机器人保持相同的路由口径：整行匹配、大小写不敏感
var (
	reCheckIn  = regexp.MustCompile(`(?i)^check\s*in$`)
	reCheckOut = regexp.MustCompile(`(?i)^check\s*out$`)
	reWC       = regexp.MustCompile(`(?i)^wc$`)
	reSmoke    = regexp.MustCompile(`(?i)^smoke$`)
	reEat      = regexp.MustCompile(`(?i)^eat$`)
	reBack     = regexp.MustCompile(`(?i)^(1|\+1|back|finish|done|back to seat)$`)
)

// classify 把一条消息文本归类为六种信号之一
func classify(text string) signalKind {
	text = strings.TrimSpace(text)
	switch {
	case reCheckIn.MatchString(text):
		return sigCheckIn
	case reCheckOut.MatchString(text):
		return sigCheckOut
	case reWC.MatchString(text):
		return sigWC
	case reSmoke.MatchString(text):
		return sigSmoke
	case reEat.MatchString(text):
		return sigEat
	case reBack.MatchString(text):
		return sigBack
	default:
		return sigNone
	}
}

// Bot Telegram 长轮询传输层
// 只负责收发与路由；全部业务语义在 service 层
type Bot struct {
	api           *tgbotapi.BotAPI
	svc           *service.Service
	adminUsername string
	logger        *zap.Logger
}

// NewBot 创建并校验 Telegram Bot 连接
func NewBot(cfg *config.TelegramConfig, svc *service.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	logger.Info("Telegram Bot 已就绪", zap.String("username", api.Self.UserName))
	return &Bot{
		api:           api,
		svc:           svc,
		adminUsername: cfg.AdminUsername,
		logger:        logger,
	}, nil
}

// Run 启动长轮询循环，直到 ctx 取消
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram 轮询已停止")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate 处理单条更新
// 处理器内的 panic 只记日志，绝不拖垮轮询循环
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("处理更新时发生 panic", zap.Any("panic", r))
		}
	}()

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(msg, welcomeText)
		case "getreport":
			b.handleReport(msg)
		}
		return
	}

	identity := msg.From.ID
	displayName := fullName(msg.From)
	handle := msg.From.UserName

	var reply string
	switch classify(msg.Text) {
	case sigCheckIn:
		reply, _ = b.svc.Attendance.OnCheckIn(ctx, identity, displayName, handle)
	case sigCheckOut:
		reply = b.svc.Attendance.OnCheckOut(ctx, identity, handle)
	case sigWC:
		reply = b.svc.Attendance.OnBreakStart(ctx, identity, displayName, model.BreakWC)
	case sigSmoke:
		reply = b.svc.Attendance.OnBreakStart(ctx, identity, displayName, model.BreakSmoke)
	case sigEat:
		reply = b.svc.Attendance.OnBreakStart(ctx, identity, displayName, model.BreakEat)
	case sigBack:
		reply, _ = b.svc.Attendance.OnBackFromBreak(ctx, identity)
	default:
		return
	}

	if reply != "" {
		b.reply(msg, reply)
	}
}

// handleReport /getreport：仅管理员可用，生成并回传当日考勤日报
func (b *Bot) handleReport(msg *tgbotapi.Message) {
	if msg.From.UserName != b.adminUsername {
		b.reply(msg, "You are not authorized to perform this action.")
		return
	}

	buf, filename, err := b.svc.Report.GenerateDaily()
	if err != nil {
		if errors.Is(err, service.ErrReportEmpty) {
			b.reply(msg, "No activity to report for today.")
			return
		}
		b.logger.Error("生成日报失败", zap.Error(err))
		b.reply(msg, "Failed to generate the report, please try again later.")
		return
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  filename,
		Bytes: buf.Bytes(),
	})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("发送日报失败", zap.Error(err))
		return
	}
	b.reply(msg, "Report sent.")
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error("发送回复失败", zap.Error(err))
	}
}

func fullName(u *tgbotapi.User) string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// [自证通过] internal/transport/telegram/bot.go
