// Package i18n holds the UI's Swedish and English texts and the user's
// language choice.
package i18n

import (
	"fmt"
	"sync"

	"github.com/sakif/wishlist/internal/prefs"
)

// Language is a supported UI language.
type Language string

const (
	Swedish Language = "sv"
	English Language = "en"
)

// Default is used until the user picks a language.
const Default = Swedish

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == Swedish || l == English
}

// Translations is every user-visible text of the UI.
type Translations struct {
	// Start view
	AppTitle            string
	ListNamePlaceholder string
	CreateNew           string
	Load                string

	// List view
	BackButton        string
	AddPersonCategory string
	AddButton         string
	AddWish           string
	EmptySublist      string
	EmptyState        string
	SaveEdit          string
	CancelEdit        string
	DeleteItem        string
	ConfirmDelete     string
	RenameWishlist    string
	DeleteWishlist    string
	ConfirmDeleteList string

	// Claim
	ClaimPrompt string
	ClaimButton string
	Unclaim     string

	// Toolbar, left
	ListActions        string
	SaveJSON           string
	LoadJSON           string
	ShareURL           string
	CopiedToClipboard  string
	ListWarning        string
	ContinueRecentList string

	// Toolbar, right
	Settings   string
	Theme      string
	LightTheme string
	DarkTheme  string
	Language   string
	Swedish    string
	English    string

	// Errors
	ErrorPrefix         string
	ErrorNoName         string
	ErrorCreateFailed   string
	ErrorNotFound       string
	ErrorLoadFailed     string
	ErrorClaimFailed    string
	ErrorNoClaimant     string
	ErrorAddSublist     string
	ErrorUpdateSublist  string
	ErrorAddItem        string
	ErrorEditItem       string
	ErrorDeleteItem     string
	ErrorRenameFailed   string
	ErrorDeleteFailed   string
	ErrorImportFailed   string
	ErrorInvalidFile    string
	ErrorExportFailed   string
	ErrorShareFailed    string
	ErrorNotConfigured  string
	ErrorBackendOffline string
}

var tables = map[Language]Translations{
	Swedish: {
		AppTitle:            "Skapa en önskelista",
		ListNamePlaceholder: "Namn på önskelistan...",
		CreateNew:           "Skapa ny",
		Load:                "Ladda",

		BackButton:        "Tillbaka",
		AddPersonCategory: "Lägg till person/kategori...",
		AddButton:         "Lägg till",
		AddWish:           "Lägg till önskning...",
		EmptySublist:      "Inga önskningar ännu",
		EmptyState:        "Lägg till en person eller kategori för att börja",
		SaveEdit:          "Spara",
		CancelEdit:        "Avbryt",
		DeleteItem:        "Ta bort önskning",
		ConfirmDelete:     "Är du säker på att du vill ta bort denna önskning?",
		RenameWishlist:    "Byt namn",
		DeleteWishlist:    "Ta bort lista",
		ConfirmDeleteList: "Är du säker på att du vill ta bort hela önskelistan?",

		ClaimPrompt: "Vem paxar denna önskning?",
		ClaimButton: "Paxa",
		Unclaim:     "Av-paxa",

		ListActions:        "Lista",
		SaveJSON:           "💾 Spara JSON",
		LoadJSON:           "📂 Ladda JSON",
		ShareURL:           "🔗 Dela länk",
		CopiedToClipboard:  "Kopierat till urklipp!",
		ListWarning:        "⚠️ Kom ihåg att spara länken eller exportera som JSON för att komma åt listan senare",
		ContinueRecentList: "Fortsätt på senaste lista",

		Settings:   "Inställningar",
		Theme:      "Tema",
		LightTheme: "☀️ Ljust",
		DarkTheme:  "🌙 Mörkt",
		Language:   "Språk",
		Swedish:    "🇸🇪 Svenska",
		English:    "🇬🇧 Engelska",

		ErrorPrefix:         "Fel",
		ErrorNoName:         "Ange ett namn på önskelistan",
		ErrorCreateFailed:   "Kunde inte skapa önskelista",
		ErrorNotFound:       "Önskelistan hittades inte",
		ErrorLoadFailed:     "Kunde inte ladda önskelistan",
		ErrorClaimFailed:    "Kunde inte paxa/av-paxa önskning",
		ErrorNoClaimant:     "Ange vem som paxar önskningen",
		ErrorAddSublist:     "Kunde inte lägga till person/kategori",
		ErrorUpdateSublist:  "Kunde inte ändra person/kategori",
		ErrorAddItem:        "Kunde inte lägga till önskning",
		ErrorEditItem:       "Kunde inte ändra önskning",
		ErrorDeleteItem:     "Kunde inte ta bort önskning",
		ErrorRenameFailed:   "Kunde inte byta namn på önskelistan",
		ErrorDeleteFailed:   "Kunde inte ta bort önskelistan",
		ErrorImportFailed:   "Kunde inte importera önskelistan",
		ErrorInvalidFile:    "Filen är inte en giltig önskelista",
		ErrorExportFailed:   "Kunde inte spara JSON",
		ErrorShareFailed:    "Kunde inte kopiera länken",
		ErrorNotConfigured:  "Servern är inte konfigurerad. Ange WISHLIST_API_URL.",
		ErrorBackendOffline: "Servern svarar inte",
	},
	English: {
		AppTitle:            "Create a wishlist",
		ListNamePlaceholder: "Wishlist name...",
		CreateNew:           "Create new",
		Load:                "Load",

		BackButton:        "Back",
		AddPersonCategory: "Add person/category...",
		AddButton:         "Add",
		AddWish:           "Add wish...",
		EmptySublist:      "No wishes yet",
		EmptyState:        "Add a person or category to begin",
		SaveEdit:          "Save",
		CancelEdit:        "Cancel",
		DeleteItem:        "Delete wish",
		ConfirmDelete:     "Are you sure you want to delete this wish?",
		RenameWishlist:    "Rename",
		DeleteWishlist:    "Delete list",
		ConfirmDeleteList: "Are you sure you want to delete the whole wishlist?",

		ClaimPrompt: "Who is claiming this wish?",
		ClaimButton: "Claim",
		Unclaim:     "Unclaim",

		ListActions:        "List",
		SaveJSON:           "💾 Save JSON",
		LoadJSON:           "📂 Load JSON",
		ShareURL:           "🔗 Share link",
		CopiedToClipboard:  "Copied to clipboard!",
		ListWarning:        "⚠️ Remember to save the URL or export as JSON to access your list later",
		ContinueRecentList: "Continue with recent list",

		Settings:   "Settings",
		Theme:      "Theme",
		LightTheme: "☀️ Light",
		DarkTheme:  "🌙 Dark",
		Language:   "Language",
		Swedish:    "🇸🇪 Swedish",
		English:    "🇬🇧 English",

		ErrorPrefix:         "Error",
		ErrorNoName:         "Please enter a wishlist name",
		ErrorCreateFailed:   "Could not create wishlist",
		ErrorNotFound:       "Wishlist not found",
		ErrorLoadFailed:     "Could not load wishlist",
		ErrorClaimFailed:    "Could not claim/unclaim wish",
		ErrorNoClaimant:     "Please enter who is claiming the wish",
		ErrorAddSublist:     "Could not add person/category",
		ErrorUpdateSublist:  "Could not update person/category",
		ErrorAddItem:        "Could not add wish",
		ErrorEditItem:       "Could not edit wish",
		ErrorDeleteItem:     "Could not delete wish",
		ErrorRenameFailed:   "Could not rename wishlist",
		ErrorDeleteFailed:   "Could not delete wishlist",
		ErrorImportFailed:   "Could not import wishlist",
		ErrorInvalidFile:    "The file is not a valid wishlist",
		ErrorExportFailed:   "Could not save JSON",
		ErrorShareFailed:    "Could not copy the link",
		ErrorNotConfigured:  "The server is not configured. Set WISHLIST_API_URL.",
		ErrorBackendOffline: "The server is not responding",
	},
}

// For returns the table for lang, falling back to Default.
func For(lang Language) Translations {
	if t, ok := tables[lang]; ok {
		return t
	}
	return tables[Default]
}

// Service tracks the chosen language and notifies listeners when it changes.
type Service struct {
	store prefs.Store

	mu        sync.RWMutex
	current   Language
	listeners map[int]func(Language)
	nextID    int
}

// NewService loads the stored language from store. Missing or unknown values
// leave Default in place.
func NewService(store prefs.Store) *Service {
	s := &Service{
		store:     store,
		current:   Default,
		listeners: map[int]func(Language){},
	}
	if v, ok := store.Get(prefs.KeyLanguage); ok && Language(v).Valid() {
		s.current = Language(v)
	}
	return s
}

// Language returns the current language.
func (s *Service) Language() Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// T returns the current language's texts.
func (s *Service) T() Translations {
	return For(s.Language())
}

// SetLanguage switches and persists the language, then notifies listeners.
func (s *Service) SetLanguage(lang Language) error {
	if !lang.Valid() {
		return fmt.Errorf("i18n: unsupported language %q", lang)
	}
	if err := s.store.Set(prefs.KeyLanguage, string(lang)); err != nil {
		return fmt.Errorf("i18n: saving language: %w", err)
	}

	s.mu.Lock()
	s.current = lang
	listeners := make([]func(Language), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(lang)
	}
	return nil
}

// AddListener registers fn to be called after every language change. The
// returned function removes it.
func (s *Service) AddListener(fn func(Language)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
