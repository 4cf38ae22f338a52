package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				canonical_url TEXT,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				vendor TEXT NOT NULL DEFAULT '',
				main_image_url TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_url ON products (url)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_canonical_url ON products (canonical_url) WHERE canonical_url IS NOT NULL`,

			`CREATE TABLE IF NOT EXISTS variants (
				id TEXT PRIMARY KEY,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				sku TEXT,
				attributes JSONB NOT NULL DEFAULT '[]',
				natural_key TEXT NOT NULL,
				currency TEXT NOT NULL DEFAULT '',
				current_price NUMERIC(12,2),
				current_stock_status TEXT NOT NULL DEFAULT 'unknown',
				is_available BOOLEAN NOT NULL DEFAULT FALSE,
				last_checked_at TIMESTAMPTZ,
				metadata JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_product_natural_key ON variants (product_id, natural_key)`,

			`CREATE TABLE IF NOT EXISTS variant_price_history (
				id TEXT PRIMARY KEY,
				variant_id TEXT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
				recorded_at TIMESTAMPTZ NOT NULL,
				price NUMERIC(12,2) NOT NULL,
				currency TEXT NOT NULL DEFAULT '',
				raw TEXT NOT NULL DEFAULT '',
				metadata JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_price_history_variant ON variant_price_history (variant_id, recorded_at DESC, id DESC)`,

			`CREATE TABLE IF NOT EXISTS variant_stock_history (
				id TEXT PRIMARY KEY,
				variant_id TEXT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
				recorded_at TIMESTAMPTZ NOT NULL,
				status TEXT NOT NULL,
				raw TEXT NOT NULL DEFAULT '',
				metadata JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stock_history_variant ON variant_stock_history (variant_id, recorded_at DESC, id DESC)`,

			`CREATE TABLE IF NOT EXISTS check_runs (
				id TEXT PRIMARY KEY,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ,
				status TEXT NOT NULL DEFAULT '',
				error_message TEXT,
				metadata JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_check_runs_product_finished ON check_runs (product_id, finished_at DESC)`,

			`CREATE TABLE IF NOT EXISTS tracked_items (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				product_id TEXT NOT NULL REFERENCES products(id),
				variant_id TEXT REFERENCES variants(id),
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracked_items_unique ON tracked_items (user_id, product_id, COALESCE(variant_id, ''))`,
			`CREATE INDEX IF NOT EXISTS idx_tracked_items_product ON tracked_items (product_id)`,

			`CREATE TABLE IF NOT EXISTS notification_settings (
				user_id TEXT PRIMARY KEY,
				threshold_percentage NUMERIC(5,2) NOT NULL DEFAULT 10,
				notify_on_price_increase BOOLEAN NOT NULL DEFAULT FALSE,
				notify_restock BOOLEAN NOT NULL DEFAULT TRUE,
				notify_stock BOOLEAN NOT NULL DEFAULT TRUE
			)`,

			`CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				product_id TEXT NOT NULL,
				variant_id TEXT,
				type TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				old_price NUMERIC(12,2),
				new_price NUMERIC(12,2),
				old_status TEXT,
				new_status TEXT,
				created_at TIMESTAMPTZ NOT NULL,
				sent BOOLEAN NOT NULL DEFAULT FALSE,
				sent_at TIMESTAMPTZ,
				read BOOLEAN NOT NULL DEFAULT FALSE,
				metadata JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_unsent ON notifications (sent, created_at) WHERE sent = FALSE`,

			`CREATE TABLE IF NOT EXISTS scheduler_logs (
				id TEXT PRIMARY KEY,
				run_started_at TIMESTAMPTZ NOT NULL,
				run_finished_at TIMESTAMPTZ,
				products_checked INTEGER NOT NULL DEFAULT 0,
				items_checked INTEGER NOT NULL DEFAULT 0,
				success BOOLEAN NOT NULL DEFAULT FALSE,
				error TEXT,
				metadata JSONB
			)`,
		},
	})
}
