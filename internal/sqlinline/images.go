package sqlinline

const imageColumns = `id, job_id, storage_key, width, height, prompt, model, aspect_ratio, resolution,
    type, parent_image_id, cost, created_at`

// QImageUpsert returns the existing row when the storage key is already taken,
// which makes a retried completion reuse the images it persisted before.
const QImageUpsert = `--sql 7adbac3c-a68f-4f49-ab30-a60e1b0fa3bd
insert into generated_images (
    id, job_id, storage_key, width, height, prompt, model, aspect_ratio, resolution,
    type, parent_image_id, cost, created_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
on conflict (storage_key) do update set storage_key = excluded.storage_key
returning ` + imageColumns

const QImageListByJob = `--sql e1543bf2-e0bb-43f4-a651-3e6a6814bc22
select ` + imageColumns + `
from generated_images
where job_id = $1
order by storage_key asc
`

const QImageGetByID = `--sql 5b6d2186-ea75-46dd-8c6c-2c9101cc768b
select ` + imageColumns + `
from generated_images
where id = $1
`
