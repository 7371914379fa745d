package store

// schema creates every table the store uses. Statements are idempotent so
// Migrate can run on each start.
const schema = `
CREATE TABLE IF NOT EXISTS state_postcode (
	state              TEXT    NOT NULL,
	postcode_min_range INTEGER NOT NULL,
	postcode_max_range INTEGER NOT NULL,
	CHECK (postcode_min_range <= postcode_max_range)
);

CREATE TABLE IF NOT EXISTS patient_intake (
	intake_id     BIGSERIAL PRIMARY KEY,
	patient_id    TEXT NOT NULL,
	given_name    TEXT,
	surname       TEXT,
	date_of_birth TEXT,
	street_number INTEGER,
	address_1     TEXT,
	address_2     TEXT,
	suburb        TEXT,
	postcode      TEXT,
	state         TEXT,
	age           INTEGER,
	phone_number  TEXT,
	loaded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patient_intake_patient_id ON patient_intake (patient_id);

CREATE TABLE IF NOT EXISTS dedup_run (
	run_id               UUID PRIMARY KEY,
	started_at           TIMESTAMPTZ NOT NULL,
	finished_at          TIMESTAMPTZ NOT NULL,
	records_in           INTEGER NOT NULL,
	records_dropped      INTEGER NOT NULL,
	records_out          INTEGER NOT NULL,
	matches              INTEGER NOT NULL,
	clusters             INTEGER NOT NULL,
	match_threshold      DOUBLE PRECISION NOT NULL,
	similarity_threshold DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS patient_dedup (
	run_id     UUID NOT NULL REFERENCES dedup_run (run_id) ON DELETE CASCADE,
	patient_id TEXT NOT NULL,
	dedup_id   TEXT NOT NULL,
	PRIMARY KEY (run_id, patient_id)
);

CREATE INDEX IF NOT EXISTS idx_patient_dedup_dedup_id ON patient_dedup (run_id, dedup_id);
`
