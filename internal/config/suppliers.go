package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ModeFullRefresh = "full_refresh"
	ModeIncremental = "incremental"

	FormatTree      = "tree"
	FormatDelimited = "delimited"

	TransportHTTP = "http"
	TransportSFTP = "sftp"
)

// SupplierConfig describes one supplier feed: where it is fetched from, how it
// is parsed and how its records map onto the catalog.
type SupplierConfig struct {
	ID           int64            `mapstructure:"id" json:"id"`
	Name         string           `mapstructure:"name" json:"name"`
	Enabled      bool             `mapstructure:"enabled" json:"enabled"`
	Schedule     string           `mapstructure:"schedule" json:"schedule,omitempty"`
	Mode         string           `mapstructure:"mode" json:"mode"`
	Format       string           `mapstructure:"format" json:"format"`
	Fetch        FetchConfig      `mapstructure:"fetch" json:"fetch"`
	Tree         TreeConfig       `mapstructure:"tree" json:"tree"`
	Delimited    DelimitedConfig  `mapstructure:"delimited" json:"delimited"`
	Mapping      MappingConfig    `mapstructure:"mapping" json:"mapping"`
	LinkTemplate string           `mapstructure:"link_template" json:"link_template,omitempty"`
	StockFeed    *StockFeedConfig `mapstructure:"stock_feed" json:"stock_feed,omitempty"`
}

type FetchConfig struct {
	Transport  string            `mapstructure:"transport" json:"transport"`
	URL        string            `mapstructure:"url" json:"url,omitempty"`
	Params     map[string]string `mapstructure:"params" json:"params,omitempty"`
	Headers    map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Host       string            `mapstructure:"host" json:"host,omitempty"`
	Port       int               `mapstructure:"port" json:"port,omitempty"`
	User       string            `mapstructure:"user" json:"user,omitempty"`
	Password   string            `mapstructure:"password" json:"password,omitempty"`
	KnownHosts string            `mapstructure:"known_hosts" json:"known_hosts,omitempty"`
	Files      FetchFiles        `mapstructure:"files" json:"files"`
	Timeout    time.Duration     `mapstructure:"timeout" json:"timeout"`
	Retries    int               `mapstructure:"retries" json:"retries"`
	Delay      time.Duration     `mapstructure:"delay" json:"delay"`
}

type FetchFiles struct {
	Primary string `mapstructure:"primary" json:"primary,omitempty"`
	Stock   string `mapstructure:"stock" json:"stock,omitempty"`
}

type TreeConfig struct {
	RecordPath []string `mapstructure:"record_path" json:"record_path,omitempty"`
}

type DelimitedConfig struct {
	Zip       bool     `mapstructure:"zip" json:"zip"`
	Comma     string   `mapstructure:"comma" json:"comma,omitempty"`
	Inner     string   `mapstructure:"inner" json:"inner,omitempty"`
	MinFields int      `mapstructure:"min_fields" json:"min_fields,omitempty"`
	Header    bool     `mapstructure:"header" json:"header"`
	Encoding  string   `mapstructure:"encoding" json:"encoding,omitempty"`
	Columns   []string `mapstructure:"columns" json:"columns,omitempty"`
}

// MappingConfig lists candidate source paths per canonical field. Paths are
// dot separated and the first non-empty candidate wins.
type MappingConfig struct {
	Brand      []string     `mapstructure:"brand" json:"brand,omitempty"`
	Name       []string     `mapstructure:"name" json:"name,omitempty"`
	Barcode    []string     `mapstructure:"barcode" json:"barcode,omitempty"`
	ItemNumber []string     `mapstructure:"item_number" json:"item_number,omitempty"`
	Price      []string     `mapstructure:"price" json:"price,omitempty"`
	Stock      []string     `mapstructure:"stock" json:"stock,omitempty"`
	Category   []string     `mapstructure:"category" json:"category,omitempty"`
	Link       []string     `mapstructure:"link" json:"link,omitempty"`
	Image      ImageMapping `mapstructure:"image" json:"image"`
}

type ImageMapping struct {
	Assets     string `mapstructure:"assets" json:"assets,omitempty"`
	TypeField  string `mapstructure:"type_field" json:"type_field,omitempty"`
	TypeValue  string `mapstructure:"type_value" json:"type_value,omitempty"`
	ValueField string `mapstructure:"value_field" json:"value_field,omitempty"`
}

type StockFeedConfig struct {
	Key   []string `mapstructure:"key" json:"key"`
	Value []string `mapstructure:"value" json:"value"`
}

func (s SupplierConfig) withDefaults() SupplierConfig {
	if s.Mode == "" {
		s.Mode = ModeIncremental
	}
	if s.Fetch.Timeout <= 0 {
		s.Fetch.Timeout = 300 * time.Second
	}
	if s.Fetch.Retries <= 0 {
		s.Fetch.Retries = 3
	}
	if s.Fetch.Delay <= 0 {
		s.Fetch.Delay = 30 * time.Second
	}
	if s.Fetch.Transport == TransportSFTP && s.Fetch.Port == 0 {
		s.Fetch.Port = 22
	}
	if s.Format == FormatDelimited {
		if s.Delimited.Comma == "" {
			s.Delimited.Comma = "\t"
		}
		if s.Delimited.MinFields <= 0 {
			s.Delimited.MinFields = len(s.Delimited.Columns)
		}
	}
	if s.Mapping.Image.TypeValue == "" {
		s.Mapping.Image.TypeValue = "primary_picture"
	}
	s.Fetch.Password = os.ExpandEnv(s.Fetch.Password)
	s.Fetch.User = os.ExpandEnv(s.Fetch.User)
	s.Fetch.Host = os.ExpandEnv(s.Fetch.Host)
	s.Fetch.URL = os.ExpandEnv(s.Fetch.URL)
	s.Fetch.Params = expandValues(s.Fetch.Params)
	s.Fetch.Headers = expandValues(s.Fetch.Headers)
	return s
}

// expandValues returns a copy of m with environment placeholders resolved,
// leaving the caller's map untouched.
func expandValues(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// Redacted returns a copy safe to expose over the admin API.
func (s SupplierConfig) Redacted() SupplierConfig {
	out := s
	if out.Fetch.Password != "" {
		out.Fetch.Password = "***"
	}
	if len(s.Fetch.Params) > 0 {
		out.Fetch.Params = make(map[string]string, len(s.Fetch.Params))
		for k, v := range s.Fetch.Params {
			if isSecretKey(k) {
				v = "***"
			}
			out.Fetch.Params[k] = v
		}
	}
	if len(s.Fetch.Headers) > 0 {
		out.Fetch.Headers = make(map[string]string, len(s.Fetch.Headers))
		for k := range s.Fetch.Headers {
			out.Fetch.Headers[k] = "***"
		}
	}
	return out
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"key", "token", "secret", "password", "customerid"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// DefaultSuppliers returns the built-in registry used when no suppliers file is found.
func DefaultSuppliers() []SupplierConfig {
	return []SupplierConfig{
		{
			ID:       1,
			Name:     "GlobalWholesale",
			Enabled:  true,
			Schedule: "0 0 3 * * *",
			Mode:     ModeIncremental,
			Format:   FormatTree,
			Fetch: FetchConfig{
				Transport: TransportHTTP,
				URL:       "${SUPPLIER_XML_URL}",
				Params: map[string]string{
					"database":   "item",
					"customerid": "${SUPPLIER_CUST_ID}",
					"apikey":     "${SUPPLIER_API_KEY}",
					"filetype":   "extended",
					"language":   "fi",
				},
				Timeout: 300 * time.Second,
				Retries: 3,
				Delay:   30 * time.Second,
			},
			Tree: TreeConfig{RecordPath: []string{"PriceList", "Products", "Product"}},
			Mapping: MappingConfig{
				Brand:      []string{"Brand"},
				Name:       []string{"Descriptions.ProductName", "Descriptions.ProductNameWeb"},
				Barcode:    []string{"Identifiers.Barcode"},
				ItemNumber: []string{"Identifiers.ItemNumber"},
				Price:      []string{"Prices.NetPrice"},
				Stock:      []string{"Inventory.OnHand"},
				Category:   []string{"Categories.Category"},
				Link:       []string{"Descriptions.ProductUrl"},
				Image: ImageMapping{
					Assets:     "Assets.Asset",
					TypeField:  "Type",
					TypeValue:  "primary_picture",
					ValueField: "Value",
				},
			},
		},
		{
			ID:       2,
			Name:     "Supplier B (Nordic)",
			Enabled:  true,
			Schedule: "0 30 3 * * *",
			Mode:     ModeFullRefresh,
			Format:   FormatDelimited,
			Fetch: FetchConfig{
				Transport: TransportSFTP,
				Host:      "${SUPPLIER_B_SFTP_HOST}",
				Port:      22,
				User:      "${SUPPLIER_B_SFTP_USER}",
				Password:  "${SUPPLIER_B_SFTP_PASS}",
				Files: FetchFiles{
					Primary: "pricelist-11.txt.zip",
					Stock:   "stock.txt",
				},
				Timeout: 300 * time.Second,
				Retries: 3,
				Delay:   30 * time.Second,
			},
			Delimited: DelimitedConfig{
				Zip:       true,
				Comma:     "\t",
				Inner:     ";",
				MinFields: 7,
				Header:    true,
				Columns:   []string{"brand", "product_id", "category", "name", "stock", "price", "ean"},
			},
			Mapping: MappingConfig{
				Brand:      []string{"brand"},
				Name:       []string{"name"},
				Barcode:    []string{"ean"},
				ItemNumber: []string{"product_id"},
				Price:      []string{"price"},
				Stock:      []string{"stock"},
				Category:   []string{"category"},
			},
			LinkTemplate: "https://shop.supplier-b.com/detail?id={product_key}",
			StockFeed: &StockFeedConfig{
				Key:   []string{"ProductID", "ProductId"},
				Value: []string{"AvailableQuantity", "StockQty"},
			},
		},
	}
}

// SuppliersHolder keeps the current supplier registry and swaps it when the
// suppliers file changes on disk.
type SuppliersHolder struct {
	current atomic.Value // holds []SupplierConfig
}

func NewSuppliersHolder(cfg Config, log *zap.Logger) (*SuppliersHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.suppliers")

	v := viper.New()
	if cfg.SuppliersFile != "" {
		v.SetConfigFile(cfg.SuppliersFile)
	} else {
		v.SetConfigName("suppliers")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/catalogsync")
		v.AddConfigPath(".")
	}

	holder := &SuppliersHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
		log.Info("suppliers file not found, using built-in registry")
		return NewStaticSuppliers(DefaultSuppliers())
	}

	suppliers, err := decodeSuppliers(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(suppliers)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSuppliers(v)
		if err != nil {
			log.Warn("suppliers reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("suppliers reloaded", zap.String("file", e.Name), zap.Int("count", len(updated)))
	})

	return holder, nil
}

// NewStaticSuppliers builds a holder over a fixed list.
func NewStaticSuppliers(list []SupplierConfig) (*SuppliersHolder, error) {
	normalized := make([]SupplierConfig, 0, len(list))
	for _, s := range list {
		normalized = append(normalized, s.withDefaults())
	}
	if err := validateSuppliers(normalized); err != nil {
		return nil, err
	}
	holder := &SuppliersHolder{}
	holder.current.Store(normalized)
	return holder, nil
}

func (h *SuppliersHolder) All() []SupplierConfig {
	list, _ := h.current.Load().([]SupplierConfig)
	out := make([]SupplierConfig, len(list))
	copy(out, list)
	return out
}

func (h *SuppliersHolder) Enabled() []SupplierConfig {
	out := []SupplierConfig{}
	for _, s := range h.All() {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func (h *SuppliersHolder) Get(id int64) (SupplierConfig, bool) {
	for _, s := range h.All() {
		if s.ID == id {
			return s, true
		}
	}
	return SupplierConfig{}, false
}

func decodeSuppliers(v *viper.Viper) ([]SupplierConfig, error) {
	var raw []SupplierConfig
	if err := v.UnmarshalKey("suppliers", &raw); err != nil {
		return nil, err
	}
	out := make([]SupplierConfig, 0, len(raw))
	for _, s := range raw {
		out = append(out, s.withDefaults())
	}
	if err := validateSuppliers(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateSuppliers(list []SupplierConfig) error {
	if len(list) == 0 {
		return errors.New("suppliers cannot be empty")
	}
	seen := map[int64]struct{}{}
	for _, s := range list {
		if s.ID <= 0 {
			return fmt.Errorf("supplier %q: id must be positive", s.Name)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("supplier %d: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("supplier %d: name is required", s.ID)
		}
		switch s.Mode {
		case ModeFullRefresh, ModeIncremental:
		default:
			return fmt.Errorf("supplier %d: unknown mode %q", s.ID, s.Mode)
		}
		switch s.Format {
		case FormatTree:
			if len(s.Tree.RecordPath) == 0 {
				return fmt.Errorf("supplier %d: tree.record_path is required", s.ID)
			}
		case FormatDelimited:
			if len(s.Delimited.Columns) == 0 {
				return fmt.Errorf("supplier %d: delimited.columns is required", s.ID)
			}
		default:
			return fmt.Errorf("supplier %d: unknown format %q", s.ID, s.Format)
		}
		switch s.Fetch.Transport {
		case TransportHTTP, TransportSFTP:
		default:
			return fmt.Errorf("supplier %d: unknown transport %q", s.ID, s.Fetch.Transport)
		}
	}
	return nil
}
