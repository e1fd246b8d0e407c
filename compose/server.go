package compose

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/flakm/fedipage/util"
	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"
)

// Server is the SSH authoring surface: ssh in, type a note, ctrl+s to
// publish it to every follower.
type Server struct {
	conf   *util.AppConfig
	db     *db.DB
	store  *activitypub.ActorStore
	outbox *activitypub.Outbox
}

func NewServer(conf *util.AppConfig, database *db.DB, store *activitypub.ActorStore, outbox *activitypub.Outbox) *Server {
	return &Server{conf: conf, db: database, store: store, outbox: outbox}
}

// Listen builds the wish server. With an authorized_keys file in place
// only listed keys get in; without one any key is accepted, the surface
// being meant for the operator's own box.
func (s *Server) Listen() (*ssh.Server, error) {
	return wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.SshPort)),
		wish.WithHostKeyPath(util.ResolveFilePathWithSubdir(".ssh", "hostkey")),
		wish.WithPublicKeyAuth(publicKeyAuth(util.ResolveFilePathWithSubdir(".ssh", "authorized_keys"))),
		wish.WithMiddleware(
			bm.Middleware(s.teaHandler),
			logging.Middleware(), // last middleware executed first
		),
	)
}

func publicKeyAuth(authorizedKeysPath string) func(ssh.Context, ssh.PublicKey) bool {
	authorized, err := loadAuthorizedKeys(authorizedKeysPath)
	if err != nil {
		log.Warn("could not read authorized keys, accepting any key", "path", authorizedKeysPath, "err", err)
	}
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		if len(authorized) == 0 {
			return true
		}
		for _, ak := range authorized {
			if ssh.KeysEqual(key, ak) {
				return true
			}
		}
		log.Warn("rejected unauthorized public key", "fingerprint", gossh.FingerprintSHA256(key))
		return false
	}
}

func loadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var keys []ssh.PublicKey
	for len(data) > 0 {
		key, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
		data = rest
	}
	return keys, nil
}

func (s *Server) teaHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	_, _, active := sess.Pty()
	if !active {
		wish.Println(sess, "no active terminal, skipping")
		return nil, nil
	}
	return initialModel(s.publish), []tea.ProgramOption{tea.WithAltScreen()}
}

// publish persists the composed note and fans it out.
func (s *Server) publish(content string) error {
	content = util.NormalizeInput(content)
	if content == "" {
		return fmt.Errorf("empty note")
	}

	actor, err := s.store.ByName(s.conf.Conf.Username)
	if err != nil {
		return fmt.Errorf("local actor not provisioned: %w", err)
	}

	note := &domain.Note{
		Id:        uuid.New(),
		CreatedBy: actor.Name,
		Content:   content,
		Tags:      util.ExtractHashtags(content),
		Local:     true,
		CreatedAt: time.Now(),
	}
	note.ObjectURI = activitypub.NoteURI(s.conf.Conf.SslDomain, note.Id)

	if err := s.db.CreateNote(note); err != nil {
		return fmt.Errorf("could not save note: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	report, err := s.outbox.PublishNote(ctx, actor, note)
	if err != nil {
		return err
	}

	log.Info("note composed over ssh", "note", note.Id, "delivered", report.Delivered(), "failed", report.Failed())
	return nil
}
