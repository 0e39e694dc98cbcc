package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"chicklist/internal/database"
	"chicklist/internal/docstore"
	"chicklist/internal/liststore"
	"chicklist/internal/logging"
	"chicklist/internal/model"
	"chicklist/internal/prefs"
	syncer "chicklist/internal/sync"
)

const chicklistVersion = "0.1.0"

const usage = `ChickList, listes de courses partagées.

Sans connexion au démon, la liste vit dans la base locale. Après
"chicklist login", les commandes passent par le serveur configuré.

Usage:
    chicklist login --user=<id> [--server=<url>] [--passphrase=<p>]
    chicklist logout
    chicklist show [--mode=<mode>]
    chicklist add <name>... [--category=<cat>] [--aisle=<n>] [--qty=<qty>]
    chicklist check <name>...
    chicklist remove <name>...
    chicklist clear
    chicklist lists
    chicklist create <name>...
    chicklist join <code>
    chicklist leave
    chicklist switch <name>...
    chicklist rename <name>...

Options:
    -h --help            Show this screen.
    --version            Show version.
    --user=<id>          Identifiant (devient la clé des adhésions).
    --server=<url>       URL du démon, ex: http://localhost:8080
    --passphrase=<p>     Phrase secrète (sinon CHICKLIST_PASSPHRASE).
    --mode=<mode>        Affichage: category, aisle ou all.
    --category=<cat>     Catégorie de l'article.
    --aisle=<n>          Numéro de rayon.
    --qty=<qty>          Quantité, texte libre.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], chicklistVersion)
	if err != nil {
		fail(err)
	}

	logging.Setup("warn", "")

	if cmd, _ := opts.Bool("login"); cmd {
		login(opts)
		return
	}
	if cmd, _ := opts.Bool("logout"); cmd {
		logout()
		return
	}

	app, err := newApp()
	if err != nil {
		fail(err)
	}
	defer app.close()

	switch {
	case boolOpt(opts, "show"):
		app.show(opts)
	case boolOpt(opts, "add"):
		app.add(opts)
	case boolOpt(opts, "check"):
		app.check(opts)
	case boolOpt(opts, "remove"):
		app.remove(opts)
	case boolOpt(opts, "clear"):
		app.clear()
	case boolOpt(opts, "lists"):
		app.showLists()
	case boolOpt(opts, "create"):
		app.create(opts)
	case boolOpt(opts, "join"):
		app.join(opts)
	case boolOpt(opts, "leave"):
		app.leave()
	case boolOpt(opts, "switch"):
		app.switchList(opts)
	case boolOpt(opts, "rename"):
		app.rename(opts)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func boolOpt(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func nameArg(opts docopt.Opts) string {
	raw, _ := opts["<name>"].([]string)
	return strings.Join(raw, " ")
}

func dbPath() (string, error) {
	if p := os.Getenv("CHICKLIST_DB_PATH"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "chicklist")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "chicklist.db"), nil
}

// app holds one CLI invocation's stores: local prefs plus either the remote
// document store (when logged in) or the local one.
type app struct {
	db     *sql.DB
	prefs  *prefs.Store
	client *syncer.Client
	store  *liststore.Store
	ctx    context.Context
	cancel context.CancelFunc
}

func newApp() (*app, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouverture de la base locale: %w", err)
	}

	a := &app{db: db, prefs: prefs.NewStore(db)}
	a.ctx, a.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	serverURL, _ := a.prefs.Get("server_url")
	token, _ := a.prefs.Get("auth_token")
	userID, _ := a.prefs.Get("user_id")

	var docs docstore.Store
	if serverURL != "" && token != "" {
		client, err := syncer.Dial(a.ctx, serverURL+"/sync", token)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connexion au serveur %s: %w", serverURL, err)
		}
		a.client = client
		docs = client
	} else {
		docs = docstore.NewSQLiteStore(db)
		userID = ""
	}

	a.store = liststore.New(liststore.Config{Docs: docs, Prefs: a.prefs})
	if err := a.store.Start(a.ctx, userID); err != nil {
		a.close()
		return nil, err
	}

	// Remote subscriptions deliver asynchronously; give the first snapshots
	// a moment so one-shot commands see the current state.
	if a.client != nil {
		deadline := time.Now().Add(3 * time.Second)
		for len(a.store.Lists()) == 0 && time.Now().Before(deadline) {
			time.Sleep(25 * time.Millisecond)
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Flush()
		a.store.Stop()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.cancel()
}

func login(opts docopt.Opts) {
	userID, _ := opts.String("--user")
	serverURL, _ := opts.String("--server")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	passphrase, _ := opts.String("--passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("CHICKLIST_PASSPHRASE")
	}
	if passphrase == "" {
		fail(fmt.Errorf("phrase secrète requise (--passphrase ou CHICKLIST_PASSPHRASE)"))
	}

	body, _ := json.Marshal(map[string]string{"userId": userID, "passphrase": passphrase})
	resp, err := http.Post(serverURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		fail(fmt.Errorf("connexion à %s: %w", serverURL, err))
	}
	defer resp.Body.Close()

	var lr struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		fail(fmt.Errorf("réponse illisible du serveur: %w", err))
	}
	if resp.StatusCode != http.StatusOK || lr.Token == "" {
		if lr.Error == "" {
			lr.Error = resp.Status
		}
		fail(fmt.Errorf("échec de la connexion: %s", lr.Error))
	}

	path, err := dbPath()
	if err != nil {
		fail(err)
	}
	db, err := database.Open(path)
	if err != nil {
		fail(err)
	}
	defer db.Close()
	p := prefs.NewStore(db)
	for key, value := range map[string]string{
		"server_url": serverURL,
		"auth_token": lr.Token,
		"user_id":    strings.TrimSpace(userID),
	} {
		if err := p.Set(key, value); err != nil {
			fail(err)
		}
	}
	fmt.Printf("Connecté à %s en tant que %s.\n", serverURL, strings.TrimSpace(userID))
}

func logout() {
	path, err := dbPath()
	if err != nil {
		fail(err)
	}
	db, err := database.Open(path)
	if err != nil {
		fail(err)
	}
	defer db.Close()
	p := prefs.NewStore(db)
	for _, key := range []string{"server_url", "auth_token", "user_id"} {
		if err := p.Set(key, ""); err != nil {
			fail(err)
		}
	}
	fmt.Println("Déconnecté.")
}

func (a *app) show(opts docopt.Opts) {
	l, ok := a.store.ActiveList()
	if !ok {
		fmt.Println("Aucune liste.")
		return
	}

	mode := model.DisplayByCategory
	if m, _ := opts.String("--mode"); m != "" {
		mode = model.DisplayMode(m)
	} else if saved, err := a.prefs.DisplayMode(); err == nil {
		mode = saved
	}

	fmt.Printf("%s (code %s), %d à acheter, %d cochés\n", l.Name, l.ShareCode, l.UncheckedCount(), l.CheckedCount())
	for _, g := range l.GroupItems(mode) {
		if g.Label != "" {
			fmt.Printf("\n%s\n", g.Label)
		}
		for _, item := range g.Items {
			mark := " "
			if item.Checked {
				mark = "x"
			}
			line := fmt.Sprintf("  [%s] %s", mark, item.Name)
			if item.Quantity != "" {
				line += " (" + item.Quantity + ")"
			}
			if item.Aisle != nil && mode != model.DisplayByAisle {
				line += ", rayon " + strconv.Itoa(*item.Aisle)
			}
			fmt.Println(line)
		}
	}
}

func (a *app) add(opts docopt.Opts) {
	name := nameArg(opts)
	category, _ := opts.String("--category")
	quantity, _ := opts.String("--qty")
	aisle := 0
	if raw, _ := opts.String("--aisle"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(fmt.Errorf("rayon invalide: %q", raw))
		}
		aisle = n
	}

	before := a.store.UncheckedCount()
	a.store.AddItem(name, category, aisle, quantity)
	if a.store.UncheckedCount() == before {
		fmt.Println("Rien à ajouter.")
		return
	}
	l, _ := a.store.ActiveList()
	fmt.Printf("Ajouté: %s\n", l.Items[0].Name)
}

func (a *app) findItem(name string) (model.Item, bool) {
	l, ok := a.store.ActiveList()
	if !ok {
		return model.Item{}, false
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, item := range l.Items {
		if strings.ToLower(item.Name) == needle {
			return item, true
		}
	}
	return model.Item{}, false
}

func (a *app) check(opts docopt.Opts) {
	name := nameArg(opts)
	item, ok := a.findItem(name)
	if !ok {
		fail(fmt.Errorf("article introuvable: %s", name))
	}
	a.store.ToggleItem(item.ID)
	if item.Checked {
		fmt.Printf("Décoché: %s\n", item.Name)
	} else {
		fmt.Printf("Coché: %s\n", item.Name)
	}
}

func (a *app) remove(opts docopt.Opts) {
	name := nameArg(opts)
	item, ok := a.findItem(name)
	if !ok {
		fail(fmt.Errorf("article introuvable: %s", name))
	}
	a.store.RemoveItem(item.ID)
	fmt.Printf("Supprimé: %s\n", item.Name)
}

func (a *app) clear() {
	n := a.store.CheckedCount()
	a.store.RemoveChecked()
	fmt.Printf("%d article(s) coché(s) supprimé(s).\n", n)
}

func (a *app) showLists() {
	active := a.store.ActiveListID()
	for _, l := range a.store.Lists() {
		marker := " "
		if l.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %s (code %s, %d articles)\n", marker, l.Name, l.ShareCode, len(l.Items))
	}
}

func (a *app) create(opts docopt.Opts) {
	name := nameArg(opts)
	l := a.store.CreateList(name)
	if l.ID == "" {
		fail(fmt.Errorf("nom de liste invalide"))
	}
	fmt.Printf("Liste créée: %s (code %s)\n", l.Name, l.ShareCode)
}

func (a *app) join(opts docopt.Opts) {
	code, _ := opts.String("<code>")
	before := len(a.store.JoinedShareCodes())
	a.store.Join(code, nil)
	if len(a.store.JoinedShareCodes()) == before {
		fail(fmt.Errorf("code de partage invalide: %s", code))
	}
	fmt.Printf("Liste rejointe: %s\n", strings.ToUpper(strings.TrimSpace(code)))
}

func (a *app) leave() {
	l, ok := a.store.ActiveList()
	if !ok {
		fmt.Println("Aucune liste.")
		return
	}
	before := len(a.store.Lists())
	a.store.Leave(l.ID)
	if len(a.store.Lists()) == before {
		fmt.Println("Impossible de quitter la dernière liste.")
		return
	}
	fmt.Printf("Liste quittée: %s\n", l.Name)
}

func (a *app) switchList(opts docopt.Opts) {
	name := strings.ToLower(strings.TrimSpace(nameArg(opts)))
	for _, l := range a.store.Lists() {
		if strings.ToLower(l.Name) == name {
			a.store.SetActive(l.ID)
			fmt.Printf("Liste active: %s\n", l.Name)
			return
		}
	}
	fail(fmt.Errorf("liste introuvable: %s", nameArg(opts)))
}

func (a *app) rename(opts docopt.Opts) {
	l, ok := a.store.ActiveList()
	if !ok {
		fmt.Println("Aucune liste.")
		return
	}
	a.store.RenameList(l.ID, nameArg(opts))
	renamed, _ := a.store.ActiveList()
	fmt.Printf("Liste renommée: %s\n", renamed.Name)
}
