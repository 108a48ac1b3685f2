package sqlinline

const jobColumns = `id, type, status, provider_request_id, endpoint, prompt, model, aspect_ratio, resolution,
    num_images, parent_image_id, input, result, coalesce(error, ''), estimated_cost,
    created_at, started_at, claimed_at, completed_at`

const QJobInsert = `--sql a61272a7-044e-463f-be3b-7718f7723acf
insert into generation_jobs (
    id, type, status, provider_request_id, endpoint, prompt, model, aspect_ratio, resolution,
    num_images, parent_image_id, input, estimated_cost, created_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const QJobGetByID = `--sql 83a9f570-bf7a-47dc-b6f3-dc6803ed12cd
select ` + jobColumns + `
from generation_jobs
where id = $1
`

// QJobMarkProcessing only moves queued rows; repeating it is a no-op.
const QJobMarkProcessing = `--sql c4b0a950-c09e-4c58-bdce-19832075b4f3
update generation_jobs
set status = 'processing', started_at = coalesce(started_at, $2)
where id = $1 and status = 'queued'
`

const QJobClaimCompletion = `--sql 2b7a5e03-ef5f-4a11-a0c1-6134f2002f89
update generation_jobs
set status = 'completing', claimed_at = $2
where id = $1 and status in ('queued', 'processing')
`

const QJobReleaseStaleClaim = `--sql ed53fde5-7768-4865-9875-d085ba442cc9
update generation_jobs
set status = 'processing', claimed_at = null
where id = $1
  and status = 'completing'
  and coalesce(claimed_at, started_at, created_at) < $2
`

const QJobSaveResult = `--sql 697c3cc0-4634-49c0-9909-43c8b7845cec
update generation_jobs
set result = $3
where id = $1 and status = 'completing' and claimed_at = $2
`

const QJobRecordError = `--sql 5d31f928-0d30-421d-80a9-a20c45b309aa
update generation_jobs
set error = $3
where id = $1 and status = 'completing' and claimed_at = $2
`

const QJobMarkCompleted = `--sql 7f8cff5a-f9cf-4f67-a729-b6f16745dc59
update generation_jobs
set status = 'completed', completed_at = $3, error = null
where id = $1 and status = 'completing' and claimed_at = $2
`

const QJobMarkFailed = `--sql 734453a9-9dcf-47b7-8d95-fa29de9adff1
update generation_jobs
set status = 'failed', error = $3, completed_at = $4, result = null
where id = $1 and status = 'completing' and claimed_at = $2
`
