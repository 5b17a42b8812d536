package sqlite

const schema = `
-- Documents table
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    project TEXT,
    doc_type TEXT NOT NULL DEFAULT 'user',
    parent_id INTEGER REFERENCES documents(id) ON DELETE SET NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    accessed_at DATETIME,
    access_count INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project);
CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_documents_is_deleted ON documents(is_deleted);
CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title);

-- Full-text index over live documents (external content).
-- The triggers below keep it consistent: only non-deleted rows are indexed.
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title, content, project,
    content='documents', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS documents_fts_ai AFTER INSERT ON documents
WHEN NEW.is_deleted = 0 BEGIN
    INSERT INTO documents_fts(rowid, title, content, project)
    VALUES (NEW.id, NEW.title, NEW.content, NEW.project);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_au_del AFTER UPDATE ON documents
WHEN OLD.is_deleted = 0 BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content, project)
    VALUES ('delete', OLD.id, OLD.title, OLD.content, OLD.project);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_au_ins AFTER UPDATE ON documents
WHEN NEW.is_deleted = 0 BEGIN
    INSERT INTO documents_fts(rowid, title, content, project)
    VALUES (NEW.id, NEW.title, NEW.content, NEW.project);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_ad AFTER DELETE ON documents
WHEN OLD.is_deleted = 0 BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content, project)
    VALUES ('delete', OLD.id, OLD.title, OLD.content, OLD.project);
END;

-- Tags
CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    use_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS document_tags (
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (document_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_document_tags_tag ON document_tags(tag_id);

-- Document links (stored directed, queried bidirectionally)
CREATE TABLE IF NOT EXISTS document_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    target_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    score REAL NOT NULL DEFAULT 1.0 CHECK(score >= 0.0 AND score <= 1.0),
    method TEXT NOT NULL DEFAULT 'manual',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (source_id, target_id),
    CHECK (source_id != target_id)
);

CREATE INDEX IF NOT EXISTS idx_document_links_source ON document_links(source_id);
CREATE INDEX IF NOT EXISTS idx_document_links_target ON document_links(target_id);
CREATE INDEX IF NOT EXISTS idx_document_links_method ON document_links(method);

-- Extracted entities
CREATE TABLE IF NOT EXISTS document_entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    entity TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT 'concept',
    confidence REAL NOT NULL DEFAULT 0.5 CHECK(confidence >= 0.0 AND confidence <= 1.0),
    UNIQUE (document_id, entity)
);

CREATE INDEX IF NOT EXISTS idx_document_entities_entity ON document_entities(entity);
CREATE INDEX IF NOT EXISTS idx_document_entities_doc ON document_entities(document_id);

CREATE TABLE IF NOT EXISTS entity_relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source_entity TEXT NOT NULL,
    target_entity TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    UNIQUE (document_id, source_entity, target_entity, relationship_type)
);

-- Wiki topics (discovered clusters)
CREATE TABLE IF NOT EXISTS wiki_topics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    label TEXT NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    coherence_score REAL NOT NULL DEFAULT 0.0,
    status TEXT NOT NULL DEFAULT 'active',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS wiki_topic_members (
    topic_id INTEGER NOT NULL REFERENCES wiki_topics(id) ON DELETE CASCADE,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    relevance_score REAL NOT NULL DEFAULT 1.0 CHECK(relevance_score >= 0.0 AND relevance_score <= 1.0),
    is_primary INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (topic_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_wiki_topic_members_doc ON wiki_topic_members(document_id);

-- Generated articles (content lives in the referenced document)
CREATE TABLE IF NOT EXISTS wiki_articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id INTEGER NOT NULL UNIQUE REFERENCES wiki_topics(id) ON DELETE CASCADE,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source_hash TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL NOT NULL DEFAULT 0.0,
    version INTEGER NOT NULL DEFAULT 1,
    is_stale INTEGER NOT NULL DEFAULT 0,
    stale_reason TEXT NOT NULL DEFAULT '',
    previous_content TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS wiki_article_sources (
    article_id INTEGER NOT NULL REFERENCES wiki_articles(id) ON DELETE CASCADE,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    content_hash TEXT NOT NULL,
    PRIMARY KEY (article_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_wiki_article_sources_doc ON wiki_article_sources(document_id);

-- Batch generation runs
CREATE TABLE IF NOT EXISTS wiki_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model TEXT NOT NULL DEFAULT '',
    dry_run INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    attempted INTEGER NOT NULL DEFAULT 0,
    generated INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL NOT NULL DEFAULT 0.0
);

-- Tasks (external collaborator; analyzers read, core never writes)
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    task_type TEXT NOT NULL DEFAULT 'task',
    parent_id INTEGER REFERENCES tasks(id) ON DELETE SET NULL,
    epic_key TEXT NOT NULL DEFAULT '',
    source_doc_id INTEGER REFERENCES documents(id) ON DELETE SET NULL,
    project TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);

-- Migration bookkeeping: the highest applied migration id
CREATE TABLE IF NOT EXISTS schema_version (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, 0);
`
