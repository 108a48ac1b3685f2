package sqlinline

// Schema statements run at startup when DB_AUTO_CREATE is enabled. They only
// create what is missing and never alter existing tables.
var Schema = []string{QSchemaJobs, QSchemaImages, QSchemaImagesJobIndex, QSchemaImagesCreatedIndex}

const QSchemaJobs = `--sql 170281bf-68f9-4d61-83b3-a94ee7354d20
create table if not exists generation_jobs (
    id text primary key,
    type text not null,
    status text not null,
    provider_request_id text not null,
    endpoint text not null,
    prompt text not null default '',
    model text not null default '',
    aspect_ratio text not null default '',
    resolution text not null default '',
    num_images integer not null default 1,
    parent_image_id text,
    input jsonb,
    result jsonb,
    error text,
    estimated_cost double precision not null default 0,
    created_at timestamptz not null default now(),
    started_at timestamptz,
    claimed_at timestamptz,
    completed_at timestamptz
)
`

const QSchemaImages = `--sql 14e9523a-017c-40c2-9572-c79e43d42d13
create table if not exists generated_images (
    id text primary key,
    job_id text references generation_jobs(id),
    storage_key text not null unique,
    width integer,
    height integer,
    prompt text not null default '',
    model text not null default '',
    aspect_ratio text not null default '',
    resolution text not null default '',
    type text not null,
    parent_image_id text,
    cost double precision not null default 0,
    created_at timestamptz not null default now()
)
`

const QSchemaImagesJobIndex = `--sql 1e5842b4-fe36-4e33-91ba-95848f6af066
create index if not exists generated_images_job_id_idx on generated_images (job_id)
`

const QSchemaImagesCreatedIndex = `--sql aec7660f-69d2-4d2b-8878-f9dc067d80a8
create index if not exists generated_images_created_at_idx on generated_images (created_at desc, id desc)
`
