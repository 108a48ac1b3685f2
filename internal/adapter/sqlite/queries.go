package sqlite

var schema = []string{
	`create table if not exists generation_jobs (
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
    input text,
    result text,
    error text,
    estimated_cost real not null default 0,
    created_at text not null,
    started_at text,
    claimed_at text,
    completed_at text
)`,
	`create table if not exists generated_images (
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
    cost real not null default 0,
    created_at text not null
)`,
	`create index if not exists generated_images_job_id_idx on generated_images (job_id)`,
	`create index if not exists generated_images_created_at_idx on generated_images (created_at desc, id desc)`,
}

const jobColumns = `id, type, status, provider_request_id, endpoint, prompt, model, aspect_ratio, resolution,
    num_images, parent_image_id, input, result, coalesce(error, ''), estimated_cost,
    created_at, started_at, claimed_at, completed_at`

const (
	qJobInsert = `insert into generation_jobs (
    id, type, status, provider_request_id, endpoint, prompt, model, aspect_ratio, resolution,
    num_images, parent_image_id, input, estimated_cost, created_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	qJobGetByID = `select ` + jobColumns + ` from generation_jobs where id = ?`

	qJobMarkProcessing = `update generation_jobs
set status = 'processing', started_at = coalesce(started_at, ?)
where id = ? and status = 'queued'`

	qJobClaimCompletion = `update generation_jobs
set status = 'completing', claimed_at = ?
where id = ? and status in ('queued', 'processing')`

	qJobReleaseStaleClaim = `update generation_jobs
set status = 'processing', claimed_at = null
where id = ? and status = 'completing' and coalesce(claimed_at, started_at, created_at) < ?`

	qJobSaveResult = `update generation_jobs set result = ?
where id = ? and status = 'completing' and claimed_at = ?`

	qJobRecordError = `update generation_jobs set error = ?
where id = ? and status = 'completing' and claimed_at = ?`

	qJobMarkCompleted = `update generation_jobs
set status = 'completed', completed_at = ?, error = null
where id = ? and status = 'completing' and claimed_at = ?`

	qJobMarkFailed = `update generation_jobs
set status = 'failed', error = ?, completed_at = ?, result = null
where id = ? and status = 'completing' and claimed_at = ?`
)

const imageColumns = `id, job_id, storage_key, width, height, prompt, model, aspect_ratio, resolution,
    type, parent_image_id, cost, created_at`

const (
	qImageUpsert = `insert into generated_images (
    id, job_id, storage_key, width, height, prompt, model, aspect_ratio, resolution,
    type, parent_image_id, cost, created_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (storage_key) do update set storage_key = excluded.storage_key
returning ` + imageColumns

	qImageListByJob = `select ` + imageColumns + ` from generated_images where job_id = ? order by storage_key asc`

	qImageGetByID = `select ` + imageColumns + ` from generated_images where id = ?`
)
